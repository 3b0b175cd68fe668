// Copyright 2025 Veilchain Protocol

package chain

import (
	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/types"
)

// UTXOLocator is a UTXO index entry: the block height that produced
// the output and its path within that block's outputs tree (spec.md
// §3 "UTXO index").
type UTXOLocator struct {
	Height types.Height
	Path   types.Path
}

// UTXOIndex maps output hash to its live (height, path) locator.
// Invariant I1 (spec.md §3): an entry exists iff the output has been
// produced by some applied block and not yet consumed. Owned
// exclusively by the chain engine's task (spec.md §5); no locking.
type UTXOIndex struct {
	entries map[crypto.Hash]UTXOLocator
}

// NewUTXOIndex creates an empty index.
func NewUTXOIndex() *UTXOIndex {
	return &UTXOIndex{entries: make(map[crypto.Hash]UTXOLocator)}
}

// Insert records a freshly produced, still-unspent output.
func (idx *UTXOIndex) Insert(hash crypto.Hash, loc UTXOLocator) {
	idx.entries[hash] = loc
}

// Remove deletes an entry, returning it and whether it was present.
func (idx *UTXOIndex) Remove(hash crypto.Hash) (UTXOLocator, bool) {
	loc, ok := idx.entries[hash]
	if ok {
		delete(idx.entries, hash)
	}
	return loc, ok
}

// Has reports whether hash has a live entry.
func (idx *UTXOIndex) Has(hash crypto.Hash) bool {
	_, ok := idx.entries[hash]
	return ok
}

// Lookup returns the locator for hash.
func (idx *UTXOIndex) Lookup(hash crypto.Hash) (UTXOLocator, bool) {
	loc, ok := idx.entries[hash]
	return loc, ok
}

// Len reports the number of live entries.
func (idx *UTXOIndex) Len() int {
	return len(idx.entries)
}
