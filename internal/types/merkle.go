// Copyright 2025 Veilchain Protocol
//
// Merkle tree of outputs with stable leaf paths under pruning,
// adapted from the level-array construction in the teacher's
// pkg/merkle/tree.go. The teacher's tree has no destructive
// operation; Prune here is new code in the teacher's idiom, storing
// the removed leaf's hash in a placeholder node so sibling paths
// issued before pruning keep resolving and the root is unaffected
// (spec.md §4.B, §9).

package types

import (
	"errors"
	"fmt"

	"github.com/veilchain/veil/internal/crypto"
)

// ErrEmptyTree is returned when building a tree from zero leaves.
var ErrEmptyTree = errors.New("types: cannot build a merkle tree from zero leaves")

// ErrLeafNotFound is returned when a path does not resolve.
var ErrLeafNotFound = errors.New("types: leaf not found at path")

// Path identifies a leaf's position in the tree.
type Path struct {
	Index int
}

// nodeKind distinguishes a leaf that still carries its Output from
// one that has been pruned in place.
type nodeKind uint8

const (
	nodeLeaf nodeKind = iota
	nodePruned
)

type leafNode struct {
	kind nodeKind
	hash crypto.Hash // always populated, even once pruned
	out  Output      // nil once pruned
}

// Tree is a binary Merkle tree over a block's outputs. Once built,
// its Root never changes, including across Prune calls.
type Tree struct {
	leaves []*leafNode
	levels [][]crypto.Hash
}

// BuildTree constructs a Merkle tree from an ordered list of outputs.
func BuildTree(outputs []Output) (*Tree, error) {
	if len(outputs) == 0 {
		return nil, ErrEmptyTree
	}
	t := &Tree{leaves: make([]*leafNode, len(outputs))}
	level := make([]crypto.Hash, len(outputs))
	for i, o := range outputs {
		h := o.Hash()
		t.leaves[i] = &leafNode{kind: nodeLeaf, hash: h, out: o}
		level[i] = h
	}
	t.levels = append(t.levels, level)
	t.build()
	return t, nil
}

func (t *Tree) build() {
	level := t.levels[0]
	for len(level) > 1 {
		next := make([]crypto.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		t.levels = append(t.levels, next)
		level = next
	}
}

func hashPair(l, r crypto.Hash) crypto.Hash {
	return crypto.HashBytes(l.Bytes(), r.Bytes())
}

// Root returns the tree's root hash. Stable across Prune calls.
func (t *Tree) Root() crypto.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Leafs returns every live (unpruned) output in leaf order.
func (t *Tree) Leafs() []Output {
	out := make([]Output, 0, len(t.leaves))
	for _, l := range t.leaves {
		if l.kind == nodeLeaf {
			out = append(out, l.out)
		}
	}
	return out
}

// LeafCount returns the number of leaves, live or pruned.
func (t *Tree) LeafCount() int {
	return len(t.leaves)
}

// PathOf returns the path of the leaf with the given hash, live or
// already pruned (its hash is retained in the placeholder).
func (t *Tree) PathOf(hash crypto.Hash) (Path, error) {
	for i, l := range t.leaves {
		if l.hash == hash {
			return Path{Index: i}, nil
		}
	}
	return Path{}, ErrLeafNotFound
}

// Lookup resolves a path to its live output. Returns ErrLeafNotFound
// if the path is out of range or the leaf has been pruned.
func (t *Tree) Lookup(path Path) (Output, error) {
	if path.Index < 0 || path.Index >= len(t.leaves) {
		return nil, ErrLeafNotFound
	}
	l := t.leaves[path.Index]
	if l.kind == nodePruned {
		return nil, ErrLeafNotFound
	}
	return l.out, nil
}

// Prune removes the leaf at path, replacing it with a placeholder
// that preserves its hash (and therefore the tree's root) while
// dropping the underlying Output. Prune is idempotent.
func (t *Tree) Prune(path Path) error {
	if path.Index < 0 || path.Index >= len(t.leaves) {
		return fmt.Errorf("types: prune path %d out of range [0,%d)", path.Index, len(t.leaves))
	}
	l := t.leaves[path.Index]
	l.kind = nodePruned
	l.out = nil
	return nil
}

// Restore undoes a prior Prune at path, reinstating out as the live
// leaf. The caller must supply the same output that was pruned away
// (its hash must match the placeholder's retained hash); used to
// revert a micro-block that consumed one of this tree's outputs as an
// input (spec.md §4.D revert_micro).
func (t *Tree) Restore(path Path, out Output) error {
	if path.Index < 0 || path.Index >= len(t.leaves) {
		return fmt.Errorf("types: restore path %d out of range [0,%d)", path.Index, len(t.leaves))
	}
	l := t.leaves[path.Index]
	if l.kind != nodePruned {
		return fmt.Errorf("types: restore path %d is not pruned", path.Index)
	}
	if out.Hash() != l.hash {
		return fmt.Errorf("types: restore path %d hash mismatch", path.Index)
	}
	l.kind = nodeLeaf
	l.out = out
	return nil
}
