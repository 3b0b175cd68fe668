// Copyright 2025 Veilchain Protocol
//
// Mempool: in-memory pending-transaction set indexed three ways
// (spec.md §4.F), owned exclusively by its own task (spec.md §5). The
// map-of-sets layout mirrors the escrow's per-validator bucketing in
// internal/escrow/escrow.go, applied here to transaction indices
// instead of stake records.

package mempool

import (
	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/types"
)

// Mempool holds pending, not-yet-included transactions.
type Mempool struct {
	byHash   map[crypto.Hash]*types.Transaction
	byInput  map[crypto.Hash]crypto.Hash // input hash -> claiming tx hash
	byOutput map[crypto.Hash]crypto.Hash // output hash -> producing tx hash
}

// New creates an empty mempool.
func New() *Mempool {
	return &Mempool{
		byHash:   make(map[crypto.Hash]*types.Transaction),
		byInput:  make(map[crypto.Hash]crypto.Hash),
		byOutput: make(map[crypto.Hash]crypto.Hash),
	}
}

// Contains reports whether hash is a pending transaction's hash.
func (m *Mempool) Contains(hash crypto.Hash) bool {
	_, ok := m.byHash[hash]
	return ok
}

// ContainsInput reports whether any pending transaction claims hash
// as an input.
func (m *Mempool) ContainsInput(hash crypto.Hash) bool {
	_, ok := m.byInput[hash]
	return ok
}

// ContainsOutput reports whether any pending transaction produces an
// output with the given hash.
func (m *Mempool) ContainsOutput(hash crypto.Hash) bool {
	_, ok := m.byOutput[hash]
	return ok
}

// Get returns the pending transaction with the given hash.
func (m *Mempool) Get(hash crypto.Hash) (*types.Transaction, bool) {
	tx, ok := m.byHash[hash]
	return tx, ok
}

// Insert admits tx into every index. Callers must have already run it
// through the transaction validator (internal/validator).
func (m *Mempool) Insert(tx *types.Transaction) {
	h := tx.Hash()
	m.byHash[h] = tx
	for _, in := range tx.InputHashes {
		m.byInput[in] = h
	}
	for _, out := range tx.Outputs {
		m.byOutput[out.Hash()] = h
	}
}

// Prune atomically removes every transaction that claims any of
// inputs or produces any of outputs (spec.md §4.F). For each removed
// transaction it reports whether its own outputs all ended up
// included in the block that triggered the prune — callers distinguish
// Prepared/Committed (outputsIntact true) from Conflicted (false) by
// passing blockOutputs, the set of output hashes the applied block
// actually produced.
func (m *Mempool) Prune(inputs, outputs []crypto.Hash, blockOutputs map[crypto.Hash]struct{}) map[crypto.Hash]bool {
	toRemove := make(map[crypto.Hash]struct{})
	for _, h := range inputs {
		if txHash, ok := m.byInput[h]; ok {
			toRemove[txHash] = struct{}{}
		}
	}
	for _, h := range outputs {
		if txHash, ok := m.byOutput[h]; ok {
			toRemove[txHash] = struct{}{}
		}
	}

	removed := make(map[crypto.Hash]bool, len(toRemove))
	for txHash := range toRemove {
		tx := m.byHash[txHash]
		intact := true
		for _, out := range tx.Outputs {
			if _, ok := blockOutputs[out.Hash()]; !ok {
				intact = false
				break
			}
		}
		removed[txHash] = intact
		m.remove(tx)
	}
	return removed
}

func (m *Mempool) remove(tx *types.Transaction) {
	h := tx.Hash()
	delete(m.byHash, h)
	for _, in := range tx.InputHashes {
		delete(m.byInput, in)
	}
	for _, out := range tx.Outputs {
		delete(m.byOutput, out.Hash())
	}
}

// Len returns the number of pending transactions.
func (m *Mempool) Len() int {
	return len(m.byHash)
}
