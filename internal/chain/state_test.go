// Copyright 2025 Veilchain Protocol

package chain

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/escrow"
	"github.com/veilchain/veil/internal/mempool"
	"github.com/veilchain/veil/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, crypto.Hash) {
	t.Helper()
	db := dbm.NewMemDB()
	store := NewBlockStore(db, GobCodec{})
	esc := escrow.New(cmtlog.NewNopLogger())
	notifier := NewNotifier()
	mp := mempool.New()
	genesisPrevious := crypto.HashBytes([]byte("test genesis"))
	engine := NewEngine(cmtlog.NewNopLogger(), store, esc, notifier, mp, genesisPrevious, 1000, 10)
	return engine, genesisPrevious
}

// genesisMacroBlock builds a single-output, balanced macro-block
// spending nothing: its MonetaryAdjustment equals the clear amount it
// mints, closing fee_a(adjustment) - created_block = 0 = gamma*G(0)
// (checkLocalBalance/checkGlobalBalance, spec.md §4.D steps 6-7).
func genesisMacroBlock(previous crypto.Hash, recipient crypto.PubKey, amount int64, facilitator crypto.NetKey) *types.MacroBlock {
	out := types.NewPublicPaymentOutput(recipient, amount)
	tree, err := types.BuildTree([]types.Output{out})
	if err != nil {
		panic(err)
	}
	return &types.MacroBlock{
		BaseHeader: types.BaseHeader{Previous: previous, Epoch: 1},
		MonetaryFields: types.MonetaryFields{
			MonetaryAdjustment: amount,
		},
		Outputs:         tree,
		NextFacilitator: facilitator,
		NextValidators:  []types.ValidatorStake{{Validator: facilitator, Amount: 0}},
	}
}

func applyGenesis(t *testing.T, e *Engine, previous crypto.Hash, recipient crypto.PubKey, amount int64) *types.MacroBlock {
	t.Helper()
	_, facilitator, err := crypto.GenerateNetKeyPair()
	if err != nil {
		t.Fatalf("generate facilitator key: %v", err)
	}
	block := genesisMacroBlock(previous, recipient, amount, facilitator)
	if err := e.ApplyMacro(block); err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
	return block
}

func TestApplyGenesis(t *testing.T) {
	e, previous := newTestEngine(t)
	_, pk := crypto.GeneratePaymentKeyPair()

	block := applyGenesis(t, e, previous, pk, 1000)

	if e.State() != StateGenesisApplied {
		t.Fatalf("state after genesis: got %v, want StateGenesisApplied", e.State())
	}
	if e.Epoch() != 1 {
		t.Fatalf("epoch after genesis: got %d, want 1", e.Epoch())
	}
	height, ok := e.Height()
	if !ok || height != 0 {
		t.Fatalf("height after genesis: got (%d, %v), want (0, true)", height, ok)
	}

	out := block.Outputs.Leafs()[0]
	resolved, ok := e.ResolveOutput(out.Hash())
	if !ok {
		t.Fatalf("genesis output should resolve from the UTXO index")
	}
	if resolved.Hash() != out.Hash() {
		t.Fatalf("resolved output hash mismatch")
	}
}

func TestApplyMacroRejectsPreviousHashMismatch(t *testing.T) {
	e, _ := newTestEngine(t)
	_, pk := crypto.GeneratePaymentKeyPair()
	wrongPrevious := crypto.HashBytes([]byte("not the configured genesis previous"))

	_, facilitator, err := crypto.GenerateNetKeyPair()
	if err != nil {
		t.Fatalf("generate facilitator key: %v", err)
	}
	bad := genesisMacroBlock(wrongPrevious, pk, 1000, facilitator)
	if err := e.ApplyMacro(bad); err != ErrPreviousHashMismatch {
		t.Fatalf("expected ErrPreviousHashMismatch, got %v", err)
	}
}

func TestApplyMacroRejectsWrongEpoch(t *testing.T) {
	e, previous := newTestEngine(t)
	_, pk := crypto.GeneratePaymentKeyPair()
	_, facilitator, err := crypto.GenerateNetKeyPair()
	if err != nil {
		t.Fatalf("generate facilitator key: %v", err)
	}
	block := genesisMacroBlock(previous, pk, 1000, facilitator)
	block.Epoch = 2 // must be current_epoch(0) + 1 == 1
	if err := e.ApplyMacro(block); err != ErrWrongEpoch {
		t.Fatalf("expected ErrWrongEpoch, got %v", err)
	}
}

// microSpend builds a balanced micro-block that spends input entirely
// into a single new output of the same amount: zero fee, zero
// monetary adjustment, zero gamma.
func microSpend(previous crypto.Hash, input types.Output, recipient crypto.PubKey) *types.MicroBlock {
	out := types.NewPublicPaymentOutput(recipient, input.(*types.PublicPaymentOutput).Amount)
	tree, err := types.BuildTree([]types.Output{out})
	if err != nil {
		panic(err)
	}
	return &types.MicroBlock{
		BaseHeader:  types.BaseHeader{Previous: previous},
		InputHashes: []crypto.Hash{input.Hash()},
		Outputs:     tree,
	}
}

func TestApplyMicroSpendAndResolve(t *testing.T) {
	e, previous := newTestEngine(t)
	_, senderKey := crypto.GeneratePaymentKeyPair()
	genesis := applyGenesis(t, e, previous, senderKey, 1000)
	genesisOut := genesis.Outputs.Leafs()[0]

	_, recipientKey := crypto.GeneratePaymentKeyPair()
	micro := microSpend(genesis.Hash(), genesisOut, recipientKey)

	if err := e.ApplyMicro(micro); err != nil {
		t.Fatalf("apply micro: %v", err)
	}

	if _, ok := e.ResolveOutput(genesisOut.Hash()); ok {
		t.Fatalf("spent genesis output should no longer resolve")
	}
	newOut := micro.Outputs.Leafs()[0]
	if _, ok := e.ResolveOutput(newOut.Hash()); !ok {
		t.Fatalf("new micro-block output should resolve")
	}

	height, ok := e.Height()
	if !ok || height != 1 {
		t.Fatalf("height after micro-block: got (%d, %v), want (1, true)", height, ok)
	}
}

func TestApplyMicroMissingInput(t *testing.T) {
	e, previous := newTestEngine(t)
	_, senderKey := crypto.GeneratePaymentKeyPair()
	genesis := applyGenesis(t, e, previous, senderKey, 1000)

	ghostOutput := types.NewPublicPaymentOutput(senderKey, 1000)
	_, recipientKey := crypto.GeneratePaymentKeyPair()
	micro := microSpend(genesis.Hash(), ghostOutput, recipientKey)

	err := e.ApplyMicro(micro)
	if _, ok := err.(*MissingUTXOError); !ok {
		t.Fatalf("expected *MissingUTXOError, got %T: %v", err, err)
	}
}

func TestRevertMicroUndoesSpend(t *testing.T) {
	e, previous := newTestEngine(t)
	_, senderKey := crypto.GeneratePaymentKeyPair()
	genesis := applyGenesis(t, e, previous, senderKey, 1000)
	genesisOut := genesis.Outputs.Leafs()[0]

	_, recipientKey := crypto.GeneratePaymentKeyPair()
	micro := microSpend(genesis.Hash(), genesisOut, recipientKey)
	if err := e.ApplyMicro(micro); err != nil {
		t.Fatalf("apply micro: %v", err)
	}
	newOut := micro.Outputs.Leafs()[0]

	reverted, err := e.RevertMicro()
	if err != nil {
		t.Fatalf("revert micro: %v", err)
	}
	if reverted.Block != micro {
		t.Fatalf("reverted block mismatch")
	}

	if _, ok := e.ResolveOutput(newOut.Hash()); ok {
		t.Fatalf("reverted micro-block's output should no longer resolve")
	}
	if _, ok := e.ResolveOutput(genesisOut.Hash()); !ok {
		t.Fatalf("reverting the micro-block should restore the spent genesis output")
	}

	height, ok := e.Height()
	if !ok || height != 0 {
		t.Fatalf("height after revert: got (%d, %v), want (0, true)", height, ok)
	}
}

func TestRevertMicroRejectsMacroTail(t *testing.T) {
	e, previous := newTestEngine(t)
	_, senderKey := crypto.GeneratePaymentKeyPair()
	applyGenesis(t, e, previous, senderKey, 1000)

	if _, err := e.RevertMicro(); err != ErrRevertMacro {
		t.Fatalf("expected ErrRevertMacro, got %v", err)
	}
}

func TestRevertMicroEmptyChain(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.RevertMicro(); err != ErrEmptyChain {
		t.Fatalf("expected ErrEmptyChain, got %v", err)
	}
}

func TestRangeFromKnownStart(t *testing.T) {
	e, previous := newTestEngine(t)
	_, senderKey := crypto.GeneratePaymentKeyPair()
	genesis := applyGenesis(t, e, previous, senderKey, 1000)
	genesisOut := genesis.Outputs.Leafs()[0]

	_, recipientKey := crypto.GeneratePaymentKeyPair()
	micro := microSpend(genesis.Hash(), genesisOut, recipientKey)
	if err := e.ApplyMicro(micro); err != nil {
		t.Fatalf("apply micro: %v", err)
	}

	blocks, err := e.Range(genesis.Hash(), 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Hash() != micro.Hash() {
		t.Fatalf("range from genesis should return exactly the micro-block")
	}
}

func TestRangeUnknownStart(t *testing.T) {
	e, previous := newTestEngine(t)
	_, senderKey := crypto.GeneratePaymentKeyPair()
	applyGenesis(t, e, previous, senderKey, 1000)

	if _, err := e.Range(crypto.HashBytes([]byte("unknown")), 10); err != ErrUnknownStart {
		t.Fatalf("expected ErrUnknownStart, got %v", err)
	}
}
