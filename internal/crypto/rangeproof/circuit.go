// Copyright 2025 Veilchain Protocol
//
// Range-proof ZK circuit, adapted from the teacher's
// pkg/crypto/bls_zkp/circuit.go (same Groth16/gnark circuit shape:
// a frontend.Circuit with public and private frontend.Variable
// fields and a Define method building R1CS constraints). The
// statement proved is that a committed amount lies in [0, 2^64),
// per spec.md's "range proof" requirement on PaymentOutput, rather
// than the teacher's BLS-signature-validity statement.

package rangeproof

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
)

// BitWidth is the number of bits proved non-negative and bounded;
// wide enough for any int64 amount used elsewhere in the chain.
const BitWidth = 64

// Circuit proves that Amount, committed to publicly as
// AmountCommitment = Amount (in the scalar field, standing in for a
// Pedersen opening check performed outside the circuit), decomposes
// into BitWidth bits, i.e. 0 <= Amount < 2^64.
type Circuit struct {
	// AmountCommitment is the public value the circuit binds Amount to.
	AmountCommitment frontend.Variable `gnark:",public"`

	// Amount is the private witness: the clear value behind the
	// Pedersen commitment. It never appears on-chain; the verifier
	// only sees AmountCommitment and the proof.
	Amount frontend.Variable

	// Bits are the private per-bit witnesses, constrained to {0,1}
	// and shown to reconstruct Amount.
	Bits [BitWidth]frontend.Variable
}

// Define implements frontend.Circuit.
func (c *Circuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Amount, c.AmountCommitment)

	sum := frontend.Variable(0)
	coeff := big.NewInt(1)
	for i := 0; i < BitWidth; i++ {
		api.AssertIsBoolean(c.Bits[i])
		sum = api.Add(sum, api.Mul(c.Bits[i], new(big.Int).Set(coeff)))
		coeff.Lsh(coeff, 1)
	}
	api.AssertIsEqual(sum, c.Amount)
	return nil
}
