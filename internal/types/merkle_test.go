// Copyright 2025 Veilchain Protocol

package types

import (
	"testing"

	"github.com/veilchain/veil/internal/crypto"
)

func testOutputs(t *testing.T, n int) []Output {
	t.Helper()
	_, pk := crypto.GeneratePaymentKeyPair()
	outs := make([]Output, n)
	for i := 0; i < n; i++ {
		outs[i] = NewPublicPaymentOutput(pk, int64(i+1))
	}
	return outs
}

func TestBuildTreeEmpty(t *testing.T) {
	if _, err := BuildTree(nil); err != ErrEmptyTree {
		t.Fatalf("build empty tree: got %v, want ErrEmptyTree", err)
	}
}

func TestBuildTreeSingleLeaf(t *testing.T) {
	outs := testOutputs(t, 1)
	tree, err := BuildTree(outs)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if tree.Root() != outs[0].Hash() {
		t.Fatalf("single leaf root mismatch: got %x, want %x", tree.Root().Bytes(), outs[0].Hash().Bytes())
	}
	if tree.LeafCount() != 1 {
		t.Fatalf("leaf count: got %d, want 1", tree.LeafCount())
	}
}

func TestRootStableAcrossPrune(t *testing.T) {
	outs := testOutputs(t, 5)
	tree, err := BuildTree(outs)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	root := tree.Root()

	path, err := tree.PathOf(outs[2].Hash())
	if err != nil {
		t.Fatalf("path of leaf 2: %v", err)
	}
	if err := tree.Prune(path); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if tree.Root() != root {
		t.Fatalf("root changed after prune: got %x, want %x", tree.Root().Bytes(), root.Bytes())
	}
	if got := len(tree.Leafs()); got != 4 {
		t.Fatalf("live leaves after prune: got %d, want 4", got)
	}
}

func TestPruneThenRestore(t *testing.T) {
	outs := testOutputs(t, 4)
	tree, err := BuildTree(outs)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	root := tree.Root()

	path, err := tree.PathOf(outs[1].Hash())
	if err != nil {
		t.Fatalf("path of leaf 1: %v", err)
	}
	if err := tree.Prune(path); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := tree.Lookup(path); err != ErrLeafNotFound {
		t.Fatalf("lookup pruned leaf: got %v, want ErrLeafNotFound", err)
	}

	if err := tree.Restore(path, outs[1]); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, err := tree.Lookup(path)
	if err != nil {
		t.Fatalf("lookup restored leaf: %v", err)
	}
	if got.Hash() != outs[1].Hash() {
		t.Fatalf("restored leaf hash mismatch")
	}
	if tree.Root() != root {
		t.Fatalf("root changed after restore: got %x, want %x", tree.Root().Bytes(), root.Bytes())
	}
	if got := len(tree.Leafs()); got != 4 {
		t.Fatalf("live leaves after restore: got %d, want 4", got)
	}
}

func TestRestoreRejectsHashMismatch(t *testing.T) {
	outs := testOutputs(t, 3)
	tree, err := BuildTree(outs)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	path, err := tree.PathOf(outs[0].Hash())
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if err := tree.Prune(path); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if err := tree.Restore(path, outs[1]); err == nil {
		t.Fatalf("restore with mismatched output should fail")
	}
}

func TestRestoreRejectsNotPruned(t *testing.T) {
	outs := testOutputs(t, 2)
	tree, err := BuildTree(outs)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	path, err := tree.PathOf(outs[0].Hash())
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if err := tree.Restore(path, outs[0]); err == nil {
		t.Fatalf("restore of a live leaf should fail")
	}
}

func TestLookupOutOfRange(t *testing.T) {
	outs := testOutputs(t, 2)
	tree, err := BuildTree(outs)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if _, err := tree.Lookup(Path{Index: 99}); err != ErrLeafNotFound {
		t.Fatalf("lookup out of range: got %v, want ErrLeafNotFound", err)
	}
}

func TestPathOfUnknownHash(t *testing.T) {
	outs := testOutputs(t, 2)
	tree, err := BuildTree(outs)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if _, err := tree.PathOf(crypto.HashBytes([]byte("nope"))); err != ErrLeafNotFound {
		t.Fatalf("path of unknown hash: got %v, want ErrLeafNotFound", err)
	}
}

func TestOddLeafCountDuplicatesLast(t *testing.T) {
	outs := testOutputs(t, 3)
	tree, err := BuildTree(outs)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	// with 3 leaves the odd one out is paired with itself at the next
	// level; the root must still be deterministic and stable.
	again, err := BuildTree(outs)
	if err != nil {
		t.Fatalf("rebuild tree: %v", err)
	}
	if tree.Root() != again.Root() {
		t.Fatalf("root not deterministic across rebuilds")
	}
	want := hashPair(hashPair(outs[0].Hash(), outs[1].Hash()), hashPair(outs[2].Hash(), outs[2].Hash()))
	if tree.Root() != want {
		t.Fatalf("odd leaf not duplicated: got %x, want %x", tree.Root().Bytes(), want.Bytes())
	}
}
