// Copyright 2025 Veilchain Protocol
//
// Output value types: the tagged three-variant sum described in
// spec.md §3. Variants are closed and dispatched by exhaustive type
// switch rather than an interface with many implementers, per
// spec.md §9's "replace trait-object patterns with tagged variants".

package types

import (
	"encoding/binary"
	"fmt"

	"github.com/veilchain/veil/internal/crypto"
)

// Timestamp is nanoseconds since the Unix epoch.
type Timestamp int64

// Epoch is a monotone epoch counter.
type Epoch uint64

// Height is a monotone block-height counter.
type Height uint64

// Offset is the micro-block index within an epoch.
type Offset uint32

// OutputKind discriminates the Output sum's variants.
type OutputKind uint8

const (
	KindPaymentOutput OutputKind = iota
	KindPublicPaymentOutput
	KindStakeOutput
)

// Output is implemented by exactly the three variants below. Hash is
// the variant's canonical identifier, computed over its hash-stable
// field list (spec.md §6) and memoized by the constructor.
type Output interface {
	Kind() OutputKind
	Hash() crypto.Hash
	Recipient() crypto.PubKey
	// Commitment returns the value this output contributes to the
	// chain's monetary accumulators: vcmt for PaymentOutput, fee_a
	// (amount) for the clear-amount variants.
	Commitment() crypto.ECp
}

// PaymentOutput is a confidential payment: the amount, blinding and
// comment are hidden behind a Pedersen commitment and range proof,
// readable only by the recipient (and, via r, an auditor holding r).
type PaymentOutput struct {
	RecipientKey crypto.PubKey
	VCmt         crypto.ECp
	RangeProof   []byte
	// EncryptedPayload carries amount, gamma, comment and optional
	// r-value, sealed under RecipientKey (see internal/crypto/encryption.go).
	EncryptedPayload []byte
	// EphemeralSeed is carried alongside the ciphertext so the
	// recipient (or an r-holding auditor) can re-derive the symmetric
	// key without an interactive handshake.
	EphemeralSeed []byte

	hash crypto.Hash
}

// NewPaymentOutput constructs a PaymentOutput and memoizes its hash.
func NewPaymentOutput(recipient crypto.PubKey, vcmt crypto.ECp, rangeProof, encryptedPayload, ephemeralSeed []byte) *PaymentOutput {
	o := &PaymentOutput{
		RecipientKey:     recipient,
		VCmt:             vcmt,
		RangeProof:       append([]byte(nil), rangeProof...),
		EncryptedPayload: append([]byte(nil), encryptedPayload...),
		EphemeralSeed:    append([]byte(nil), ephemeralSeed...),
	}
	o.hash = hashOutput(KindPaymentOutput, recipient, vcmtBytes(vcmt), encryptedPayload)
	return o
}

func (o *PaymentOutput) Kind() OutputKind          { return KindPaymentOutput }
func (o *PaymentOutput) Hash() crypto.Hash         { return o.hash }
func (o *PaymentOutput) Recipient() crypto.PubKey  { return o.RecipientKey }
func (o *PaymentOutput) Commitment() crypto.ECp    { return o.VCmt }

// PublicPaymentOutput carries its amount in the clear.
type PublicPaymentOutput struct {
	RecipientKey crypto.PubKey
	Amount       int64

	hash crypto.Hash
}

// NewPublicPaymentOutput constructs a PublicPaymentOutput.
func NewPublicPaymentOutput(recipient crypto.PubKey, amount int64) *PublicPaymentOutput {
	o := &PublicPaymentOutput{RecipientKey: recipient, Amount: amount}
	o.hash = hashOutput(KindPublicPaymentOutput, recipient, amountBytes(amount), nil)
	return o
}

func (o *PublicPaymentOutput) Kind() OutputKind         { return KindPublicPaymentOutput }
func (o *PublicPaymentOutput) Hash() crypto.Hash        { return o.hash }
func (o *PublicPaymentOutput) Recipient() crypto.PubKey { return o.RecipientKey }
func (o *PublicPaymentOutput) Commitment() crypto.ECp   { return crypto.FeeA(o.Amount) }

// StakeOutput bonds amount to validator until unstaked per the escrow
// rules in spec.md §4.C.
type StakeOutput struct {
	RecipientKey crypto.PubKey
	Validator    crypto.NetKey
	Amount       int64
	BondingTime  Timestamp

	hash crypto.Hash
}

// NewStakeOutput constructs a StakeOutput.
func NewStakeOutput(recipient crypto.PubKey, validator crypto.NetKey, amount int64, bondingTime Timestamp) *StakeOutput {
	o := &StakeOutput{RecipientKey: recipient, Validator: validator, Amount: amount, BondingTime: bondingTime}
	o.hash = hashOutput(KindStakeOutput, recipient, amountBytes(amount), []byte(validator.String()))
	return o
}

func (o *StakeOutput) Kind() OutputKind         { return KindStakeOutput }
func (o *StakeOutput) Hash() crypto.Hash        { return o.hash }
func (o *StakeOutput) Recipient() crypto.PubKey { return o.RecipientKey }
func (o *StakeOutput) Commitment() crypto.ECp   { return crypto.FeeA(o.Amount) }

func hashOutput(kind OutputKind, recipient crypto.PubKey, valueField, extra []byte) crypto.Hash {
	return crypto.HashBytes([]byte{byte(kind)}, recipient.Bytes(), valueField, extra)
}

func vcmtBytes(c crypto.ECp) []byte {
	b := c.Bytes()
	return b[:]
}

func amountBytes(n int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	return buf[:]
}

// DecodeOutput is a placeholder hook for the wire codec (out of scope
// per spec.md §1); retained so callers have a single extension point
// once a concrete encoding is chosen.
func DecodeOutput(kind OutputKind, _ []byte) (Output, error) {
	return nil, fmt.Errorf("types: decode output kind %d: wire codec is out of scope", kind)
}
