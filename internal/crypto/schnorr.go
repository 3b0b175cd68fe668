// Copyright 2025 Veilchain Protocol
//
// Payment-key signatures. ed25519 is itself a Schnorr construction
// over a twisted Edwards curve, so the payment-key scheme required by
// spec.md (`tx.validate` confirms a "Schnorr signature") is built
// directly on cometbft's ed25519 wrapper rather than hand-rolling a
// second elliptic curve stack alongside BLS12-381.

package crypto

import (
	"fmt"

	cmted25519 "github.com/cometbft/cometbft/crypto/ed25519"
)

// PubKey is a confidential-payment public key.
type PubKey struct {
	inner cmted25519.PubKey
}

// SecKey is a confidential-payment secret key.
type SecKey struct {
	inner cmted25519.PrivKey
}

// GeneratePaymentKeyPair creates a fresh payment keypair.
func GeneratePaymentKeyPair() (SecKey, PubKey) {
	sk := cmted25519.GenPrivKey()
	return SecKey{inner: sk}, PubKey{inner: sk.PubKey().(cmted25519.PubKey)}
}

// PaymentSecKeyFromBytes reconstructs a secret key from its raw seed.
func PaymentSecKeyFromBytes(b []byte) (SecKey, error) {
	if len(b) != cmted25519.PrivKeySize {
		return SecKey{}, fmt.Errorf("payment secret key: want %d bytes, got %d", cmted25519.PrivKeySize, len(b))
	}
	sk := make(cmted25519.PrivKey, cmted25519.PrivKeySize)
	copy(sk, b)
	return SecKey{inner: sk}, nil
}

// PaymentPubKeyFromBytes reconstructs a public key from raw bytes.
func PaymentPubKeyFromBytes(b []byte) (PubKey, error) {
	if len(b) != cmted25519.PubKeySize {
		return PubKey{}, fmt.Errorf("payment public key: want %d bytes, got %d", cmted25519.PubKeySize, len(b))
	}
	pk := make(cmted25519.PubKey, cmted25519.PubKeySize)
	copy(pk, b)
	return PubKey{inner: pk}, nil
}

// Bytes returns the raw public key.
func (p PubKey) Bytes() []byte { return append([]byte(nil), p.inner...) }

// Bytes returns the raw secret key.
func (s SecKey) Bytes() []byte { return append([]byte(nil), s.inner...) }

// PubKey derives the public key for this secret key.
func (s SecKey) PubKey() PubKey {
	return PubKey{inner: s.inner.PubKey().(cmted25519.PubKey)}
}

// Equal reports whether two public keys are the same.
func (p PubKey) Equal(other PubKey) bool {
	return p.inner.Equals(other.inner)
}

// Sign produces a Schnorr (ed25519) signature over msg.
func (s SecKey) Sign(msg []byte) ([]byte, error) {
	return s.inner.Sign(msg)
}

// Verify checks a Schnorr (ed25519) signature over msg.
func (p PubKey) Verify(msg, sig []byte) bool {
	return p.inner.VerifySignature(msg, sig)
}
