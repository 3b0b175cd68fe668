// Copyright 2025 Veilchain Protocol
//
// Transaction value type and its self-contained validation (spec.md
// §4.A, §4.E step 5): Schnorr signature, Pedersen balance closure, and
// per-output range proofs. The chain, mempool and validator reference
// transactions only by hash and by their already-resolved
// inputs/outputs; Transaction.Validate is the one place their
// cryptographic shape is checked.

package types

import (
	"fmt"

	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/crypto/rangeproof"
)

// Transaction spends InputHashes (resolved elsewhere to their
// Outputs) and produces Outputs, closing the Pedersen balance
// equation under Gamma and paying Fee to the chain's clear-amount
// accumulator.
type Transaction struct {
	InputHashes []Hash
	Outputs     []Output
	Fee         int64
	Gamma       crypto.Fr
	SenderKey   crypto.PubKey
	Signature   []byte

	hash Hash
}

// Hash is an alias so this file reads naturally against spec.md's
// "hash" scalar without importing crypto under a second name.
type Hash = crypto.Hash

// NewTransaction constructs a Transaction and memoizes its hash. The
// signature must already be computed over SigningBytes and is
// supplied by the caller (the wallet, which holds the secret key).
func NewTransaction(inputHashes []Hash, outputs []Output, fee int64, gamma crypto.Fr, sender crypto.PubKey, signature []byte) *Transaction {
	tx := &Transaction{
		InputHashes: append([]Hash(nil), inputHashes...),
		Outputs:     append([]Output(nil), outputs...),
		Fee:         fee,
		Gamma:       gamma,
		SenderKey:   sender,
		Signature:   append([]byte(nil), signature...),
	}
	tx.hash = crypto.HashBytes([]byte("tx"), tx.SigningBytes())
	return tx
}

// Hash returns the transaction's canonical identifier.
func (tx *Transaction) Hash() Hash { return tx.hash }

// SigningBytes returns the canonical byte encoding over which the
// sender's Schnorr signature is computed and verified: every field
// except the signature itself.
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte
	for _, h := range tx.InputHashes {
		buf = append(buf, h.Bytes()...)
	}
	for _, o := range tx.Outputs {
		buf = append(buf, o.Hash().Bytes()...)
	}
	buf = append(buf, amountBytes(tx.Fee)...)
	gBytes := tx.Gamma.Bytes()
	buf = append(buf, gBytes[:]...)
	buf = append(buf, tx.SenderKey.Bytes()...)
	return buf
}

// Validate confirms the Schnorr signature, the Pedersen balance
// Σ input_cmt − Σ output_cmt − fee_a(fee) = gamma·G, and every output
// range proof, given the already-resolved inputs (spec.md §4.E step
// 5). prover must already have had Setup called.
func (tx *Transaction) Validate(prover *rangeproof.Prover, inputs []Output) error {
	if len(inputs) != len(tx.InputHashes) {
		return fmt.Errorf("types: validate tx %x: resolved input count mismatch", tx.hash)
	}
	if !tx.SenderKey.Verify(tx.SigningBytes(), tx.Signature) {
		return ErrInvalidSignature
	}

	lhs := crypto.FeeA(-tx.Fee)
	for _, in := range inputs {
		lhs = crypto.CommitSum(lhs, in.Commitment())
	}
	for _, out := range tx.Outputs {
		lhs = crypto.CommitSub(lhs, out.Commitment())
	}
	rhs := crypto.GammaG(&tx.Gamma)
	if !crypto.Equal(lhs, rhs) {
		return ErrInvalidTxBalance
	}

	for _, out := range tx.Outputs {
		po, ok := out.(*PaymentOutput)
		if !ok {
			continue
		}
		proof, err := rangeproof.UnmarshalProof(po.RangeProof)
		if err != nil {
			return ErrInvalidRangeProof
		}
		ok, err = prover.Verify(proof)
		if err != nil || !ok {
			return ErrInvalidRangeProof
		}
	}
	return nil
}
