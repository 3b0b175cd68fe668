// Copyright 2025 Veilchain Protocol
//
// Canonical hashing primitives shared by the UTXO model, the Merkle
// tree and the wallet. A single Keccak256 instance is used everywhere
// so that an output or block's identifier is stable regardless of
// which package computes it.

package crypto

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// HashSize is the width of a canonical digest in bytes.
const HashSize = 32

// Hash is a 32-byte digest used as the identifier of outputs, blocks
// and transactions throughout the chain.
type Hash [HashSize]byte

// IsZero reports whether h is the all-zero digest.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Bytes returns a copy of the digest as a slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// Less orders hashes by byte value, used for the escrow's deterministic
// tie-break when two stakes on the same validator differ only by
// output hash.
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// HashBytes returns the canonical hash of arbitrary bytes.
func HashBytes(data ...[]byte) Hash {
	var out Hash
	copy(out[:], ethcrypto.Keccak256(data...))
	return out
}

// HashUint64 hashes a big-endian encoded uint64 under a domain prefix.
func HashUint64(domain string, n uint64) Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return HashBytes([]byte(domain), buf[:])
}
