// Copyright 2025 Veilchain Protocol
//
// Block value types (spec.md §3). The two variants share a
// BaseHeader and are dispatched as a closed tagged sum, not through
// virtual dispatch (spec.md §9).

package types

import (
	"encoding/binary"

	"github.com/veilchain/veil/internal/crypto"
)

// BaseHeader is shared by both block variants.
type BaseHeader struct {
	Version     uint32
	Previous    crypto.Hash
	Epoch       Epoch
	Height      Height
	Offset      Offset
	ViewChange  uint32
	Timestamp   Timestamp
	Random      crypto.Hash // VRF output, see internal/crypto/vrf.go
}

// MonetaryFields are the per-block blinding adjustment and clear
// issuance/burn carried by both block variants.
type MonetaryFields struct {
	Gamma               crypto.Fr
	MonetaryAdjustment  int64
}

// BlockKind discriminates the Block sum's variants.
type BlockKind uint8

const (
	KindMicroBlock BlockKind = iota
	KindMacroBlock
)

// Block is implemented by exactly MicroBlock and MacroBlock.
type Block interface {
	Kind() BlockKind
	Header() BaseHeader
	Hash() crypto.Hash
	Inputs() []crypto.Hash
	OutputsTree() *Tree
	Monetary() MonetaryFields
}

// MicroBlock is a reversible, single-producer block proposed within
// an epoch.
type MicroBlock struct {
	BaseHeader
	MonetaryFields
	InputHashes   []crypto.Hash
	Outputs       *Tree
	ProducerSig   []byte
}

func (b *MicroBlock) Kind() BlockKind          { return KindMicroBlock }
func (b *MicroBlock) Header() BaseHeader       { return b.BaseHeader }
func (b *MicroBlock) Inputs() []crypto.Hash    { return b.InputHashes }
func (b *MicroBlock) OutputsTree() *Tree       { return b.Outputs }
func (b *MicroBlock) Monetary() MonetaryFields { return b.MonetaryFields }

// Hash computes the micro-block's canonical identifier over its
// hash-stable field list: the base header, monetary fields, input
// hashes and the outputs tree's root (spec.md §6). The Merkle root
// stays the same across in-place pruning, so this identifier is
// stable for the lifetime of the chain even after constituent outputs
// are spent and pruned.
func (b *MicroBlock) Hash() crypto.Hash {
	return hashBlock(KindMicroBlock, b.BaseHeader, b.MonetaryFields, b.InputHashes, b.Outputs.Root())
}

// MacroBlock finalizes an epoch: multi-signed by the outgoing
// validator set, never reverted, and publishes the next facilitator
// and validator set with their stakes.
type MacroBlock struct {
	BaseHeader
	MonetaryFields
	InputHashes    []crypto.Hash
	Outputs        *Tree
	MultiSig       crypto.NetSignature
	NextFacilitator crypto.NetKey
	NextValidators  []ValidatorStake
}

// ValidatorStake is one entry of the next validator set a macro-block
// publishes, paired with its staked amount (spec.md §4.D step 8).
type ValidatorStake struct {
	Validator crypto.NetKey
	Amount    int64
}

func (b *MacroBlock) Kind() BlockKind          { return KindMacroBlock }
func (b *MacroBlock) Header() BaseHeader       { return b.BaseHeader }
func (b *MacroBlock) Inputs() []crypto.Hash    { return b.InputHashes }
func (b *MacroBlock) OutputsTree() *Tree       { return b.Outputs }
func (b *MacroBlock) Monetary() MonetaryFields { return b.MonetaryFields }

// Hash computes the macro-block's canonical identifier, the same
// shape as MicroBlock.Hash plus the next facilitator (the next
// validator set does not affect the hash: it is derived data the
// macro-block publishes, not an input to its own identity).
func (b *MacroBlock) Hash() crypto.Hash {
	h := hashBlock(KindMacroBlock, b.BaseHeader, b.MonetaryFields, b.InputHashes, b.Outputs.Root())
	return crypto.HashBytes(h.Bytes(), b.NextFacilitator.Bytes())
}

func hashBlock(kind BlockKind, hdr BaseHeader, mon MonetaryFields, inputs []crypto.Hash, outputsRoot crypto.Hash) crypto.Hash {
	var buf []byte
	buf = append(buf, byte(kind))
	buf = append(buf, headerBytes(hdr)...)
	gBytes := mon.Gamma.Bytes()
	buf = append(buf, gBytes[:]...)
	buf = append(buf, amountBytes(mon.MonetaryAdjustment)...)
	for _, in := range inputs {
		buf = append(buf, in.Bytes()...)
	}
	buf = append(buf, outputsRoot.Bytes()...)
	return crypto.HashBytes(buf)
}

func headerBytes(hdr BaseHeader) []byte {
	buf := make([]byte, 0, 4+32+8+8+4+4+8+32)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], hdr.Version)
	buf = append(buf, u32[:]...)
	buf = append(buf, hdr.Previous.Bytes()...)
	buf = append(buf, u64Bytes(uint64(hdr.Epoch))...)
	buf = append(buf, u64Bytes(uint64(hdr.Height))...)
	binary.BigEndian.PutUint32(u32[:], uint32(hdr.Offset))
	buf = append(buf, u32[:]...)
	binary.BigEndian.PutUint32(u32[:], hdr.ViewChange)
	buf = append(buf, u32[:]...)
	buf = append(buf, u64Bytes(uint64(hdr.Timestamp))...)
	buf = append(buf, hdr.Random.Bytes()...)
	return buf
}

func u64Bytes(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return buf[:]
}
