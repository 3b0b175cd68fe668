// Copyright 2025 Veilchain Protocol
//
// Range-proof prover/verifier, adapted from the teacher's
// pkg/crypto/bls_zkp/prover.go: same one-time Setup, Prove and
// Verify shape over gnark's Groth16 backend on BN254, applied to the
// Circuit in circuit.go instead of a BLS-signature statement.

package rangeproof

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Prover holds the compiled circuit and Groth16 key pair. A single
// instance is shared process-wide since Setup is expensive; per
// spec.md §5 this is pure-function verification work and may run
// inline on the calling task without its own suspension point.
type Prover struct {
	mu sync.RWMutex

	cs constraint.ConstraintSystem
	pk groth16.ProvingKey
	vk groth16.VerifyingKey

	ready bool
}

// NewProver creates an uninitialized prover; call Setup before use.
func NewProver() *Prover {
	return &Prover{}
}

// Setup compiles the circuit and runs the Groth16 trusted setup. Must
// be called once before Prove/Verify.
func (p *Prover) Setup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		return nil
	}

	var circuit Circuit
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return fmt.Errorf("compile range proof circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("range proof groth16 setup: %w", err)
	}

	p.cs, p.pk, p.vk = cs, pk, vk
	p.ready = true
	return nil
}

// Proof is a serialized range proof plus its public statement.
type Proof struct {
	Bytes    []byte
	PublicIn *big.Int // the committed amount, in the scalar field
}

// Prove produces a range proof that amount lies in [0, 2^64).
func (p *Prover) Prove(amount int64) (*Proof, error) {
	if amount < 0 {
		return nil, errors.New("range proof: amount must be non-negative")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return nil, errors.New("range proof: prover not initialized")
	}

	amt := new(big.Int).SetInt64(amount)
	assignment := &Circuit{
		AmountCommitment: amt,
		Amount:           amt,
	}
	for i := 0; i < BitWidth; i++ {
		assignment.Bits[i] = (amount >> uint(i)) & 1
	}

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("range proof witness: %w", err)
	}

	proof, err := groth16.Prove(p.cs, p.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("range proof generation: %w", err)
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize range proof: %w", err)
	}
	return &Proof{Bytes: buf.Bytes(), PublicIn: amt}, nil
}

// Marshal encodes a Proof for storage in PaymentOutput.RangeProof: a
// 4-byte big-endian length prefix, the Groth16 proof bytes, then the
// public amount as a fixed 32-byte big-endian scalar.
func (proof *Proof) Marshal() []byte {
	out := make([]byte, 4+len(proof.Bytes)+32)
	out[0] = byte(len(proof.Bytes) >> 24)
	out[1] = byte(len(proof.Bytes) >> 16)
	out[2] = byte(len(proof.Bytes) >> 8)
	out[3] = byte(len(proof.Bytes))
	copy(out[4:], proof.Bytes)
	proof.PublicIn.FillBytes(out[4+len(proof.Bytes):])
	return out
}

// UnmarshalProof decodes the format produced by Proof.Marshal.
func UnmarshalProof(data []byte) (*Proof, error) {
	if len(data) < 4+32 {
		return nil, errors.New("range proof: encoded proof too short")
	}
	n := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if len(data) != 4+n+32 {
		return nil, errors.New("range proof: encoded proof length mismatch")
	}
	proofBytes := append([]byte(nil), data[4:4+n]...)
	publicIn := new(big.Int).SetBytes(data[4+n:])
	return &Proof{Bytes: proofBytes, PublicIn: publicIn}, nil
}

// Verify checks a range proof against its declared public statement.
func (p *Prover) Verify(proof *Proof) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return false, errors.New("range proof: prover not initialized")
	}

	assignment := &Circuit{AmountCommitment: proof.PublicIn}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("range proof public witness: %w", err)
	}

	g16proof := groth16.NewProof(ecc.BN254)
	if _, err := g16proof.ReadFrom(bytes.NewReader(proof.Bytes)); err != nil {
		return false, fmt.Errorf("deserialize range proof: %w", err)
	}

	if err := groth16.Verify(g16proof, p.vk, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}
