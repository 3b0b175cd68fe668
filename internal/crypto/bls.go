// Copyright 2025 Veilchain Protocol
//
// BLS12-381 validator signatures, adapted from the teacher's
// pkg/crypto/bls/bls.go. Trimmed to what macro-block finalization
// needs: keygen, sign/verify, and signature/pubkey aggregation for
// the validator-set multi-signature. The ZK-circuit half of the
// teacher's package lives separately in crypto/rangeproof, repurposed
// for range proofs instead of signature aggregation proofs.

package crypto

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	blsfr "github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

var (
	blsInitOnce sync.Once
	blsG1Gen    bls12381.G1Affine
	blsG2Gen    bls12381.G2Affine
)

func initBLS() {
	blsInitOnce.Do(func() {
		_, _, g1, g2 := bls12381.Generators()
		blsG1Gen = g1
		blsG2Gen = g2
	})
}

// DomainValidatorSig is the domain separation tag for macro-block
// multi-signatures.
const DomainValidatorSig = "VEIL_MACRO_SIG_V1"

// NetSecKey is a validator's BLS secret key.
type NetSecKey struct {
	scalar blsfr.Element
}

// NetKey is a validator's BLS public key (their network identity).
type NetKey struct {
	point bls12381.G2Affine
}

// NetSignature is a BLS signature over G1, used both for a single
// validator's vote and, aggregated, for a macro-block's multi-signature.
type NetSignature struct {
	point bls12381.G1Affine
}

// GenerateNetKeyPair generates a fresh validator keypair.
func GenerateNetKeyPair() (NetSecKey, NetKey, error) {
	initBLS()
	var sk blsfr.Element
	if _, err := sk.SetRandom(); err != nil {
		return NetSecKey{}, NetKey{}, fmt.Errorf("generate validator key: %w", err)
	}
	priv := NetSecKey{scalar: sk}
	return priv, priv.PubKey(), nil
}

// PubKey derives the validator's public key.
func (sk NetSecKey) PubKey() NetKey {
	initBLS()
	var pk bls12381.G2Affine
	var big big.Int
	sk.scalar.BigInt(&big)
	pk.ScalarMultiplication(&blsG2Gen, &big)
	return NetKey{point: pk}
}

// Sign signs msg under the given domain tag.
func (sk NetSecKey) Sign(domain string, msg []byte) NetSignature {
	initBLS()
	h := hashToG1(domain, msg)
	var sig bls12381.G1Affine
	var big big.Int
	sk.scalar.BigInt(&big)
	sig.ScalarMultiplication(&h, &big)
	return NetSignature{point: sig}
}

// Verify checks sig against msg under the given domain tag.
func (pk NetKey) Verify(sig NetSignature, domain string, msg []byte) bool {
	initBLS()
	h := hashToG1(domain, msg)
	var negPk bls12381.G2Affine
	negPk.Neg(&pk.point)
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{sig.point, h},
		[]bls12381.G2Affine{blsG2Gen, negPk},
	)
	return err == nil && ok
}

// Equal reports whether two validator public keys are identical.
func (pk NetKey) Equal(other NetKey) bool {
	return pk.point.Equal(&other.point)
}

// Bytes returns the compressed G2 encoding of the public key, used as
// the map key for escrow/validator-set bookkeeping.
func (pk NetKey) Bytes() []byte {
	b := pk.point.Bytes()
	return b[:]
}

// String implements a stable textual form suitable for use as a map
// key in escrow bookkeeping.
func (pk NetKey) String() string {
	return fmt.Sprintf("%x", pk.Bytes())
}

// AggregateSignatures combines per-validator signatures over the same
// message into a single multi-signature (point addition on G1).
func AggregateSignatures(sigs []NetSignature) (NetSignature, error) {
	if len(sigs) == 0 {
		return NetSignature{}, errors.New("no signatures to aggregate")
	}
	var agg bls12381.G1Jac
	agg.FromAffine(&sigs[0].point)
	for _, s := range sigs[1:] {
		var j bls12381.G1Jac
		j.FromAffine(&s.point)
		agg.AddAssign(&j)
	}
	var out bls12381.G1Affine
	out.FromJacobian(&agg)
	return NetSignature{point: out}, nil
}

// AggregatePubKeys combines validator public keys (point addition on G2).
func AggregatePubKeys(keys []NetKey) (NetKey, error) {
	if len(keys) == 0 {
		return NetKey{}, errors.New("no public keys to aggregate")
	}
	var agg bls12381.G2Jac
	agg.FromAffine(&keys[0].point)
	for _, k := range keys[1:] {
		var j bls12381.G2Jac
		j.FromAffine(&k.point)
		agg.AddAssign(&j)
	}
	var out bls12381.G2Affine
	out.FromJacobian(&agg)
	return NetKey{point: out}, nil
}

// VerifyAggregate verifies an aggregated signature against the
// aggregate of the signing public keys, all over the same message.
func VerifyAggregate(agg NetSignature, keys []NetKey, domain string, msg []byte) bool {
	aggPk, err := AggregatePubKeys(keys)
	if err != nil {
		return false
	}
	return aggPk.Verify(agg, domain, msg)
}

func hashToG1(domain string, message []byte) bls12381.G1Affine {
	p, err := bls12381.HashToG1(message, []byte(domain))
	if err != nil {
		// HashToG1 only fails on an over-long domain tag: fall back to
		// the generator rather than panicking.
		initBLS()
		return blsG1Gen
	}
	return p
}
