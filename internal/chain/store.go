// Copyright 2025 Veilchain Protocol
//
// Append-only block store, keyed by big-endian height, adapted from
// the teacher's pkg/kvdb/adapter.go (wrapping dbm.DB) and
// pkg/ledger/store.go (KV key layout, sentinel not-found errors). The
// ledger's notion of "system block meta" becomes a full encoded block
// here, and the single-writer discipline documented in the teacher's
// LedgerStore comment becomes the literal single-owning-task
// guarantee spec.md §5 requires.

package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/veilchain/veil/internal/types"
)

// ErrBlockNotFound is returned when a height has no stored block.
var ErrBlockNotFound = errors.New("chain: block not found")

var keyLatestHeight = []byte("chain:latest_height")

func blockKey(height uint64) []byte {
	b := make([]byte, 8+len("chain:block:"))
	n := copy(b, "chain:block:")
	binary.BigEndian.PutUint64(b[n:], height)
	return b
}

// BlockCodec encodes and decodes blocks for the persisted store. The
// wire format is out of scope (spec.md §1); callers supply a concrete
// codec, keeping BlockStore itself encoding-agnostic.
type BlockCodec interface {
	Encode(b types.Block) ([]byte, error)
	Decode(b []byte) (types.Block, error)
}

// BlockStore is the append-only, height-keyed persisted block store
// described in spec.md §6 ("Persisted block store"). It assumes
// single-writer access from the chain engine's owning task.
type BlockStore struct {
	db    dbm.DB
	codec BlockCodec
}

// NewBlockStore wraps db for block persistence.
func NewBlockStore(db dbm.DB, codec BlockCodec) *BlockStore {
	return &BlockStore{db: db, codec: codec}
}

// Append writes block at height, advancing the store's latest-height
// marker. Callers must ensure height is exactly one past the current
// latest (enforced by the chain engine, not the store).
func (s *BlockStore) Append(height uint64, b types.Block) error {
	enc, err := s.codec.Encode(b)
	if err != nil {
		return fmt.Errorf("chain: encode block at height %d: %w", height, err)
	}
	if err := s.db.SetSync(blockKey(height), enc); err != nil {
		return fmt.Errorf("chain: persist block at height %d: %w", height, err)
	}
	var hb [8]byte
	binary.BigEndian.PutUint64(hb[:], height)
	if err := s.db.SetSync(keyLatestHeight, hb[:]); err != nil {
		return fmt.Errorf("chain: persist latest height: %w", err)
	}
	return nil
}

// DeleteTail removes the block at height, used to undo an Append when
// a micro-block is reverted. It also rewinds the latest-height marker
// to height-1, or clears it when height is 0.
func (s *BlockStore) DeleteTail(height uint64) error {
	if err := s.db.Delete(blockKey(height)); err != nil {
		return fmt.Errorf("chain: delete block at height %d: %w", height, err)
	}
	var hb [8]byte
	if height == 0 {
		if err := s.db.Delete(keyLatestHeight); err != nil {
			return fmt.Errorf("chain: clear latest height: %w", err)
		}
		return nil
	}
	binary.BigEndian.PutUint64(hb[:], height-1)
	if err := s.db.SetSync(keyLatestHeight, hb[:]); err != nil {
		return fmt.Errorf("chain: rewind latest height: %w", err)
	}
	return nil
}

// Get reads the block at height.
func (s *BlockStore) Get(height uint64) (types.Block, error) {
	raw, err := s.db.Get(blockKey(height))
	if err != nil {
		return nil, fmt.Errorf("chain: read block at height %d: %w", height, err)
	}
	if len(raw) == 0 {
		return nil, ErrBlockNotFound
	}
	return s.codec.Decode(raw)
}

// LatestHeight returns the highest height persisted, and false if the
// store is empty.
func (s *BlockStore) LatestHeight() (uint64, bool, error) {
	raw, err := s.db.Get(keyLatestHeight)
	if err != nil {
		return 0, false, fmt.Errorf("chain: read latest height: %w", err)
	}
	if len(raw) == 0 {
		return 0, false, nil
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

// Range returns at most count blocks starting at height start,
// iterating in height order (spec.md §6).
func (s *BlockStore) Range(start uint64, count int) ([]types.Block, error) {
	out := make([]types.Block, 0, count)
	for h := start; len(out) < count; h++ {
		b, err := s.Get(h)
		if errors.Is(err, ErrBlockNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
