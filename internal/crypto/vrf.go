// Copyright 2025 Veilchain Protocol
//
// The block header's `random` field (spec.md §3 BaseHeader) is
// produced by a verifiable random function over the validator's
// identity key. A BLS signature is already deterministic and
// publicly verifiable given the signer's public key, so it serves as
// a VRF without introducing a second cryptographic construction: the
// "proof" is the signature itself, and the output is its hash.

package crypto

// DomainVRF is the domain separation tag for VRF evaluations, kept
// distinct from DomainValidatorSig so a block signature can never be
// replayed as a VRF proof or vice versa.
const DomainVRF = "VEIL_VRF_V1"

// VRFProve evaluates the VRF over seed using sk, returning the proof
// (a BLS signature) alongside the derived pseudorandom output.
func VRFProve(sk NetSecKey, seed []byte) (proof NetSignature, output Hash) {
	proof = sk.Sign(DomainVRF, seed)
	b := proof.point.Bytes()
	output = HashBytes(b[:])
	return proof, output
}

// VRFVerify checks that proof is a valid VRF evaluation of seed under
// pk, and if so returns the derived output.
func VRFVerify(pk NetKey, seed []byte, proof NetSignature) (output Hash, ok bool) {
	if !pk.Verify(proof, DomainVRF, seed) {
		return Hash{}, false
	}
	b := proof.point.Bytes()
	return HashBytes(b[:]), true
}
