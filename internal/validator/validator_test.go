// Copyright 2025 Veilchain Protocol

package validator

import (
	"testing"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/crypto/rangeproof"
	"github.com/veilchain/veil/internal/escrow"
	"github.com/veilchain/veil/internal/types"
)

const testPaymentFee = int64(1)
const testStakeFee = int64(1)

// fakeChain is a minimal ChainView backed by a fixed output set, with
// no range-proof machinery behind it: every test transaction below
// only uses clear-amount outputs, so tx.Validate never needs a real
// Groth16 setup.
type fakeChain struct {
	outputs map[crypto.Hash]types.Output
	epoch   types.Epoch
}

func newFakeChain() *fakeChain {
	return &fakeChain{outputs: make(map[crypto.Hash]types.Output)}
}

func (c *fakeChain) ResolveOutput(hash crypto.Hash) (types.Output, bool) {
	out, ok := c.outputs[hash]
	return out, ok
}

func (c *fakeChain) Epoch() types.Epoch { return c.epoch }

func (c *fakeChain) add(out types.Output) {
	c.outputs[out.Hash()] = out
}

// fakeMempool is a minimal MempoolView with test-controlled hit sets.
type fakeMempool struct {
	hashes  map[crypto.Hash]struct{}
	inputs  map[crypto.Hash]struct{}
	outputs map[crypto.Hash]struct{}
}

func newFakeMempool() *fakeMempool {
	return &fakeMempool{
		hashes:  make(map[crypto.Hash]struct{}),
		inputs:  make(map[crypto.Hash]struct{}),
		outputs: make(map[crypto.Hash]struct{}),
	}
}

func (m *fakeMempool) Contains(hash crypto.Hash) bool       { _, ok := m.hashes[hash]; return ok }
func (m *fakeMempool) ContainsInput(hash crypto.Hash) bool  { _, ok := m.inputs[hash]; return ok }
func (m *fakeMempool) ContainsOutput(hash crypto.Hash) bool { _, ok := m.outputs[hash]; return ok }

// balancedTx builds a signed transaction spending one clear-amount
// input for inputAmount and producing one clear-amount output for
// outputAmount, with fee = inputAmount - outputAmount (zero gamma, so
// the Pedersen balance closes on FeeA linearity alone).
func balancedTx(t *testing.T, sk crypto.SecKey, pk crypto.PubKey, input types.Output, outputAmount, fee int64) *types.Transaction {
	t.Helper()
	out := types.NewPublicPaymentOutput(pk, outputAmount)
	var gamma crypto.Fr
	unsigned := types.NewTransaction([]types.Hash{input.Hash()}, []types.Output{out}, fee, gamma, pk, nil)
	sig, err := sk.Sign(unsigned.SigningBytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return types.NewTransaction([]types.Hash{input.Hash()}, []types.Output{out}, fee, gamma, pk, sig)
}

func TestValidateAcceptsBalancedTransaction(t *testing.T) {
	sk, pk := crypto.GeneratePaymentKeyPair()
	input := types.NewPublicPaymentOutput(pk, 1000)

	ch := newFakeChain()
	ch.add(input)
	mp := newFakeMempool()
	esc := escrow.New(cmtlog.NewNopLogger())
	prover := rangeproof.NewProver()

	tx := balancedTx(t, sk, pk, input, 990, 10)

	if err := Validate(tx, mp, ch, esc, prover, 0, testPaymentFee, testStakeFee); err != nil {
		t.Fatalf("expected balanced tx to validate, got: %v", err)
	}
}

func TestValidateAlreadyExists(t *testing.T) {
	sk, pk := crypto.GeneratePaymentKeyPair()
	input := types.NewPublicPaymentOutput(pk, 1000)

	ch := newFakeChain()
	ch.add(input)
	mp := newFakeMempool()
	esc := escrow.New(cmtlog.NewNopLogger())
	prover := rangeproof.NewProver()

	tx := balancedTx(t, sk, pk, input, 990, 10)
	mp.hashes[tx.Hash()] = struct{}{}

	err := Validate(tx, mp, ch, esc, prover, 0, testPaymentFee, testStakeFee)
	if _, ok := err.(*AlreadyExistsError); !ok {
		t.Fatalf("expected *AlreadyExistsError, got %T: %v", err, err)
	}
}

func TestValidateTooLowFee(t *testing.T) {
	sk, pk := crypto.GeneratePaymentKeyPair()
	input := types.NewPublicPaymentOutput(pk, 1000)

	ch := newFakeChain()
	ch.add(input)
	mp := newFakeMempool()
	esc := escrow.New(cmtlog.NewNopLogger())
	prover := rangeproof.NewProver()

	tx := balancedTx(t, sk, pk, input, 1000, 0)

	err := Validate(tx, mp, ch, esc, prover, 0, testPaymentFee, testStakeFee)
	if _, ok := err.(*TooLowFeeError); !ok {
		t.Fatalf("expected *TooLowFeeError, got %T: %v", err, err)
	}
}

func TestValidateMissingInput(t *testing.T) {
	sk, pk := crypto.GeneratePaymentKeyPair()
	input := types.NewPublicPaymentOutput(pk, 1000)

	ch := newFakeChain() // input never added
	mp := newFakeMempool()
	esc := escrow.New(cmtlog.NewNopLogger())
	prover := rangeproof.NewProver()

	tx := balancedTx(t, sk, pk, input, 990, 10)

	err := Validate(tx, mp, ch, esc, prover, 0, testPaymentFee, testStakeFee)
	if _, ok := err.(*MissingInputError); !ok {
		t.Fatalf("expected *MissingInputError, got %T: %v", err, err)
	}
}

func TestValidateMissingInputAlreadyClaimedInMempool(t *testing.T) {
	sk, pk := crypto.GeneratePaymentKeyPair()
	input := types.NewPublicPaymentOutput(pk, 1000)

	ch := newFakeChain()
	ch.add(input)
	mp := newFakeMempool()
	mp.inputs[input.Hash()] = struct{}{}
	esc := escrow.New(cmtlog.NewNopLogger())
	prover := rangeproof.NewProver()

	tx := balancedTx(t, sk, pk, input, 990, 10)

	err := Validate(tx, mp, ch, esc, prover, 0, testPaymentFee, testStakeFee)
	if _, ok := err.(*MissingInputError); !ok {
		t.Fatalf("expected *MissingInputError for mempool-claimed input, got %T: %v", err, err)
	}
}

func TestValidateOutputHashCollisionOnChain(t *testing.T) {
	sk, pk := crypto.GeneratePaymentKeyPair()
	input := types.NewPublicPaymentOutput(pk, 1000)
	collision := types.NewPublicPaymentOutput(pk, 990)

	ch := newFakeChain()
	ch.add(input)
	ch.add(collision)
	mp := newFakeMempool()
	esc := escrow.New(cmtlog.NewNopLogger())
	prover := rangeproof.NewProver()

	tx := balancedTx(t, sk, pk, input, 990, 10)

	err := Validate(tx, mp, ch, esc, prover, 0, testPaymentFee, testStakeFee)
	if _, ok := err.(*OutputHashCollisionError); !ok {
		t.Fatalf("expected *OutputHashCollisionError, got %T: %v", err, err)
	}
}

func TestValidateInvalidSignature(t *testing.T) {
	sk, pk := crypto.GeneratePaymentKeyPair()
	input := types.NewPublicPaymentOutput(pk, 1000)

	ch := newFakeChain()
	ch.add(input)
	mp := newFakeMempool()
	esc := escrow.New(cmtlog.NewNopLogger())
	prover := rangeproof.NewProver()

	tx := balancedTx(t, sk, pk, input, 990, 10)
	tx.Signature[0] ^= 0xFF

	if err := Validate(tx, mp, ch, esc, prover, 0, testPaymentFee, testStakeFee); err != types.ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestValidateUnbalancedTransaction(t *testing.T) {
	sk, pk := crypto.GeneratePaymentKeyPair()
	input := types.NewPublicPaymentOutput(pk, 1000)

	ch := newFakeChain()
	ch.add(input)
	mp := newFakeMempool()
	esc := escrow.New(cmtlog.NewNopLogger())
	prover := rangeproof.NewProver()

	// fee + output != input: balance equation does not close.
	tx := balancedTx(t, sk, pk, input, 990, 5)

	if err := Validate(tx, mp, ch, esc, prover, 0, testPaymentFee, testStakeFee); err != types.ErrInvalidTxBalance {
		t.Fatalf("expected ErrInvalidTxBalance, got %v", err)
	}
}

func TestValidateLockedStakeRejected(t *testing.T) {
	sk, pk := crypto.GeneratePaymentKeyPair()
	_, validator, err := crypto.GenerateNetKeyPair()
	if err != nil {
		t.Fatalf("generate validator key: %v", err)
	}

	stakeInput := types.NewStakeOutput(pk, validator, 500, 1000)

	ch := newFakeChain()
	ch.add(stakeInput)
	mp := newFakeMempool()
	esc := escrow.New(cmtlog.NewNopLogger())
	esc.Stake(validator, stakeInput.Hash(), 1000, 100, 500)
	prover := rangeproof.NewProver()

	out := types.NewPublicPaymentOutput(pk, 499)
	var gamma crypto.Fr
	unsigned := types.NewTransaction([]types.Hash{stakeInput.Hash()}, []types.Output{out}, 1, gamma, pk, nil)
	sig, err := sk.Sign(unsigned.SigningBytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tx := types.NewTransaction([]types.Hash{stakeInput.Hash()}, []types.Output{out}, 1, gamma, pk, sig)

	err = Validate(tx, mp, ch, esc, prover, 0, testPaymentFee, testStakeFee)
	if _, ok := err.(*escrow.LockedStakeError); !ok {
		t.Fatalf("expected *escrow.LockedStakeError, got %T: %v", err, err)
	}
}
