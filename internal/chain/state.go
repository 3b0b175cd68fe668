// Copyright 2025 Veilchain Protocol
//
// Chain State Engine (spec.md §4.D): owns the canonical chain tail,
// the UTXO index, the escrow, and the running monetary accumulators.
// Structurally this plays the role the teacher's pkg/ledger.LedgerStore
// plays for CometBFT block commit — a single-writer component updated
// only from the owning task's commit path — generalized from a
// cross-chain anchor ledger to this chain's own block/UTXO ledger.

package chain

import (
	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/escrow"
	"github.com/veilchain/veil/internal/mempool"
	"github.com/veilchain/veil/internal/types"
)

// State discriminates the chain engine's coarse lifecycle (spec.md
// §4.D "State machine").
type State uint8

const (
	StateEmpty State = iota
	StateGenesisApplied
	StateRunning
)

// storedBlock is one entry of the in-memory chain tail: the applied
// block (whose Outputs tree is pruned in place as its leaves are
// later spent) plus, for micro-blocks, the journal needed to revert it.
type storedBlock struct {
	height  types.Height
	block   types.Block
	journal *microJournal // nil for macro-blocks, which are never reverted
}

// microJournal records everything RevertMicro needs to undo a single
// micro-block commit without recomputation (spec.md §4.D revert_micro,
// P6 revert round-trip).
type microJournal struct {
	locators     []UTXOLocator    // per block.InputHashes[i]
	inputs       []types.Output   // per block.InputHashes[i], the resolved output
	unstaked     []*escrow.Record // per block.InputHashes[i]; non-nil iff that input was a StakeOutput
	burnedBlock  crypto.ECp
	createdBlock crypto.ECp
}

// Engine implements spec.md §4.D. It is owned exclusively by one task
// (spec.md §5); none of its methods are safe for concurrent use.
type Engine struct {
	log cmtlog.Logger

	store    *BlockStore
	utxo     *UTXOIndex
	escrow   *escrow.Escrow
	notifier *Notifier
	mempool  *mempool.Mempool

	genesisPrevious crypto.Hash
	bondingTime     types.Timestamp // added to a stake's creation timestamp
	stakeEpochs     types.Epoch     // added to the current epoch for active_until_epoch

	state State

	blocks     []storedBlock
	blockIndex map[crypto.Hash]types.Height
	reversible []types.Height // heights of the trailing, still-revertible micro-blocks

	epoch           types.Epoch
	lastEpochChange types.Height

	facilitator crypto.NetKey
	validators  []types.ValidatorStake

	// Running monetary accumulators (spec.md §3, invariant I2).
	created            crypto.ECp
	burned             crypto.ECp
	gamma              crypto.Fr
	monetaryAdjustment int64
}

// NewEngine constructs an empty chain engine. genesisPrevious is the
// configured constant the first block's Previous field must equal
// (spec.md §6 "Genesis"). bondingTime and stakeEpochs parameterize
// every StakeOutput's lifecycle (spec.md §3 "Lifecycles"). mp is
// pruned on every commit so wallets learn which of their pending
// transactions landed and which conflicted (spec.md §4.F, §4.G).
func NewEngine(log cmtlog.Logger, store *BlockStore, esc *escrow.Escrow, notifier *Notifier, mp *mempool.Mempool, genesisPrevious crypto.Hash, bondingTime types.Timestamp, stakeEpochs types.Epoch) *Engine {
	return &Engine{
		log:             log.With("module", "chain"),
		store:           store,
		utxo:            NewUTXOIndex(),
		escrow:          esc,
		notifier:        notifier,
		mempool:         mp,
		genesisPrevious: genesisPrevious,
		bondingTime:     bondingTime,
		stakeEpochs:     stakeEpochs,
		blockIndex:      make(map[crypto.Hash]types.Height),
		created:         crypto.ZeroECp(),
		burned:          crypto.ZeroECp(),
	}
}

// pruneMempool removes every mempool transaction that claims one of
// the block's spent inputs or produces one of its new outputs, and
// returns the hashes of those whose own outputs did not all land in
// the block intact (spec.md §4.F prune, §4.G Conflicted transition).
func (e *Engine) pruneMempool(inputs []crypto.Hash, outputs *types.Tree) []crypto.Hash {
	leaves := outputs.Leafs()
	outputHashes := make([]crypto.Hash, len(leaves))
	blockOutputs := make(map[crypto.Hash]struct{}, len(leaves))
	for i, out := range leaves {
		h := out.Hash()
		outputHashes[i] = h
		blockOutputs[h] = struct{}{}
	}

	removed := e.mempool.Prune(inputs, outputHashes, blockOutputs)
	var conflicted []crypto.Hash
	for txHash, intact := range removed {
		if !intact {
			conflicted = append(conflicted, txHash)
		}
	}
	return conflicted
}

// State returns the engine's coarse lifecycle state.
func (e *Engine) State() State { return e.state }

// Epoch returns the current epoch.
func (e *Engine) Epoch() types.Epoch { return e.epoch }

// Height returns the height of the last applied block, and false if
// the chain is empty.
func (e *Engine) Height() (types.Height, bool) {
	if len(e.blocks) == 0 {
		return 0, false
	}
	return e.blocks[len(e.blocks)-1].height, true
}

// Facilitator and Validators return the most recently published
// next-epoch snapshot (spec.md §4.D step 8).
func (e *Engine) Facilitator() crypto.NetKey            { return e.facilitator }
func (e *Engine) Validators() []types.ValidatorStake     { return append([]types.ValidatorStake(nil), e.validators...) }

func (e *Engine) tipHash() crypto.Hash {
	if len(e.blocks) == 0 {
		return e.genesisPrevious
	}
	return e.blocks[len(e.blocks)-1].block.Hash()
}

func (e *Engine) nextHeight() types.Height {
	if len(e.blocks) == 0 {
		return 0
	}
	return e.blocks[len(e.blocks)-1].height + 1
}

// resolveInputs performs step 4 of apply_macro/apply_micro: resolves
// every input hash via the UTXO index and accumulates the block's
// burned commitment. Returns MissingUTXOError on the first unresolved
// input.
func (e *Engine) resolveInputs(inputs []crypto.Hash) ([]UTXOLocator, []types.Output, crypto.ECp, error) {
	locators := make([]UTXOLocator, len(inputs))
	outputs := make([]types.Output, len(inputs))
	burnedBlock := crypto.ZeroECp()
	for i, h := range inputs {
		loc, ok := e.utxo.Lookup(h)
		if !ok {
			return nil, nil, crypto.ECp{}, &MissingUTXOError{InputHash: h}
		}
		producing := e.blocks[loc.Height].block
		out, err := producing.OutputsTree().Lookup(loc.Path)
		if err != nil {
			return nil, nil, crypto.ECp{}, &MissingUTXOError{InputHash: h}
		}
		locators[i] = loc
		outputs[i] = out
		burnedBlock = crypto.CommitSum(burnedBlock, out.Commitment())
	}
	return locators, outputs, burnedBlock, nil
}

// checkOutputsFresh performs step 5's collision check and returns the
// block's created commitment.
func (e *Engine) checkOutputsFresh(tree *types.Tree) (crypto.ECp, error) {
	createdBlock := crypto.ZeroECp()
	for _, out := range tree.Leafs() {
		if e.utxo.Has(out.Hash()) {
			return crypto.ECp{}, ErrOutputHashCollision
		}
		createdBlock = crypto.CommitSum(createdBlock, out.Commitment())
	}
	return createdBlock, nil
}

// commitInputs performs the input half of step 8: removes each input
// from the UTXO index, prunes its leaf from the producing block's
// tree, and undoes escrow stakes for consumed StakeOutputs. Returns
// the per-input escrow records taken, for the micro-block journal.
func (e *Engine) commitInputs(inputs []crypto.Hash, locators []UTXOLocator, resolved []types.Output) ([]*escrow.Record, error) {
	unstaked := make([]*escrow.Record, len(inputs))
	for i, h := range inputs {
		e.utxo.Remove(h)
		producing := e.blocks[locators[i].Height].block
		if err := producing.OutputsTree().Prune(locators[i].Path); err != nil {
			return nil, err
		}
		if so, ok := resolved[i].(*types.StakeOutput); ok {
			rec, err := e.escrow.Take(so.Validator, h)
			if err != nil {
				return nil, err
			}
			unstaked[i] = rec
		}
	}
	return unstaked, nil
}

// commitOutputs performs the output half of step 8: inserts each new
// output into the UTXO index and records new stakes.
func (e *Engine) commitOutputs(height types.Height, tree *types.Tree, now types.Timestamp, currentEpoch types.Epoch) error {
	for i, out := range tree.Leafs() {
		path := types.Path{Index: i}
		e.utxo.Insert(out.Hash(), UTXOLocator{Height: height, Path: path})
		if so, ok := out.(*types.StakeOutput); ok {
			bondingUntil := now + e.bondingTime
			activeUntil := currentEpoch + e.stakeEpochs
			e.escrow.Stake(so.Validator, so.Hash(), bondingUntil, activeUntil, so.Amount)
		}
	}
	return nil
}

// ApplyMacro applies a macro-block, finalizing an epoch. It also
// applies the genesis block (spec.md §4.D). block.MultiSig is assumed
// already verified against the outgoing validator set by the
// consensus round that produced it; that round is out of scope here
// (spec.md §1) and Engine only consumes its output.
func (e *Engine) ApplyMacro(block *types.MacroBlock) error {
	if err := e.checkLinkage(block.BaseHeader, block.Hash()); err != nil {
		return err
	}
	if block.Epoch != e.epoch+1 {
		return ErrWrongEpoch
	}

	locators, resolved, burnedBlock, err := e.resolveInputs(block.InputHashes)
	if err != nil {
		return err
	}
	createdBlock, err := e.checkOutputsFresh(block.Outputs)
	if err != nil {
		return err
	}
	if err := e.checkLocalBalance(block.MonetaryFields, burnedBlock, createdBlock); err != nil {
		return err
	}

	height := e.nextHeight()
	candidateCreated := crypto.CommitSum(e.created, createdBlock)
	candidateBurned := crypto.CommitSum(e.burned, burnedBlock)
	candidateGamma := crypto.FrAdd(e.gamma, block.Gamma)
	candidateAdjustment := e.monetaryAdjustment + block.MonetaryAdjustment
	if err := checkGlobalBalance(candidateCreated, candidateBurned, candidateGamma, candidateAdjustment); err != nil {
		e.log.Error("global monetary balance violated", "height", height, "err", err)
		return &GlobalBalanceFatalError{Height: uint64(height)}
	}

	if _, err := e.commitInputs(block.InputHashes, locators, resolved); err != nil {
		return err
	}
	if err := e.commitOutputs(height, block.Outputs, block.Timestamp, e.epoch); err != nil {
		return err
	}
	if err := e.store.Append(uint64(height), block); err != nil {
		return err
	}

	e.blocks = append(e.blocks, storedBlock{height: height, block: block})
	e.blockIndex[block.Hash()] = height
	e.reversible = nil // a macro-block commit empties the reversible region

	e.created, e.burned, e.gamma, e.monetaryAdjustment = candidateCreated, candidateBurned, candidateGamma, candidateAdjustment
	e.epoch++
	e.lastEpochChange = height
	e.facilitator = block.NextFacilitator
	e.validators = append([]types.ValidatorStake(nil), block.NextValidators...)

	if e.state == StateEmpty {
		e.state = StateGenesisApplied
	} else {
		e.state = StateRunning
	}

	conflicted := e.pruneMempool(block.InputHashes, block.Outputs)
	e.notifier.Publish(ChainNotification{
		Kind:            KindMacroBlockCommitted,
		Epoch:           block.Epoch,
		Offset:          block.Offset,
		MacroBlock:      block,
		NextFacilitator: facilitatorEntry(block),
		NextValidators:  e.validators,
		ConflictedTxs:   conflicted,
	})
	e.log.Info("macro-block applied", "height", height, "epoch", block.Epoch)
	return nil
}

func facilitatorEntry(block *types.MacroBlock) *types.ValidatorStake {
	for _, v := range block.NextValidators {
		if v.Validator.Equal(block.NextFacilitator) {
			return &v
		}
	}
	return nil
}

// ApplyMicro applies a reversible micro-block (spec.md §4.D).
func (e *Engine) ApplyMicro(block *types.MicroBlock) error {
	if err := e.checkLinkage(block.BaseHeader, block.Hash()); err != nil {
		return err
	}

	locators, resolved, burnedBlock, err := e.resolveInputs(block.InputHashes)
	if err != nil {
		return err
	}
	createdBlock, err := e.checkOutputsFresh(block.Outputs)
	if err != nil {
		return err
	}
	if err := e.checkLocalBalance(block.MonetaryFields, burnedBlock, createdBlock); err != nil {
		return err
	}

	height := e.nextHeight()
	candidateCreated := crypto.CommitSum(e.created, createdBlock)
	candidateBurned := crypto.CommitSum(e.burned, burnedBlock)
	candidateGamma := crypto.FrAdd(e.gamma, block.Gamma)
	candidateAdjustment := e.monetaryAdjustment + block.MonetaryAdjustment
	if err := checkGlobalBalance(candidateCreated, candidateBurned, candidateGamma, candidateAdjustment); err != nil {
		e.log.Error("global monetary balance violated", "height", height, "err", err)
		return &GlobalBalanceFatalError{Height: uint64(height)}
	}

	unstaked, err := e.commitInputs(block.InputHashes, locators, resolved)
	if err != nil {
		return err
	}
	if err := e.commitOutputs(height, block.Outputs, block.Timestamp, e.epoch); err != nil {
		return err
	}
	if err := e.store.Append(uint64(height), block); err != nil {
		return err
	}

	journal := &microJournal{
		locators:     locators,
		inputs:       resolved,
		unstaked:     unstaked,
		burnedBlock:  burnedBlock,
		createdBlock: createdBlock,
	}
	e.blocks = append(e.blocks, storedBlock{height: height, block: block, journal: journal})
	e.blockIndex[block.Hash()] = height
	e.reversible = append(e.reversible, height)

	e.created, e.burned, e.gamma, e.monetaryAdjustment = candidateCreated, candidateBurned, candidateGamma, candidateAdjustment

	if e.state == StateEmpty {
		e.state = StateGenesisApplied
	} else {
		e.state = StateRunning
	}

	conflicted := e.pruneMempool(block.InputHashes, block.Outputs)
	e.notifier.Publish(ChainNotification{
		Kind:          KindMicroBlockPrepared,
		Epoch:         e.epoch,
		Offset:        block.Offset,
		MicroBlock:    block,
		ConflictedTxs: conflicted,
	})
	e.log.Info("micro-block applied", "height", height, "offset", block.Offset)
	return nil
}

// RevertMicro pops the chain's tail micro-block and undoes every
// effect of its application (spec.md §4.D revert_micro, P6).
func (e *Engine) RevertMicro() (*RevertedMicroBlock, error) {
	if len(e.blocks) == 0 {
		return nil, ErrEmptyChain
	}
	tail := e.blocks[len(e.blocks)-1]
	mb, ok := tail.block.(*types.MicroBlock)
	if !ok {
		return nil, ErrRevertMacro
	}
	journal := tail.journal

	prunedOutputs := mb.Outputs.Leafs()
	for _, out := range prunedOutputs {
		e.utxo.Remove(out.Hash())
		if so, ok := out.(*types.StakeOutput); ok {
			e.escrow.Remove(so.Validator, so.Hash())
		}
	}

	recoveredInputs := make([]types.Output, len(mb.InputHashes))
	for i := len(mb.InputHashes) - 1; i >= 0; i-- {
		h := mb.InputHashes[i]
		loc := journal.locators[i]
		producing := e.blocks[loc.Height].block
		if err := producing.OutputsTree().Restore(loc.Path, journal.inputs[i]); err != nil {
			return nil, err
		}
		e.utxo.Insert(h, loc)
		if rec := journal.unstaked[i]; rec != nil {
			e.escrow.Restore(rec)
		}
		recoveredInputs[i] = journal.inputs[i]
	}

	e.created = crypto.CommitSub(e.created, journal.createdBlock)
	e.burned = crypto.CommitSub(e.burned, journal.burnedBlock)
	e.gamma = crypto.FrSub(e.gamma, mb.Gamma)
	e.monetaryAdjustment -= mb.MonetaryAdjustment

	e.blocks = e.blocks[:len(e.blocks)-1]
	delete(e.blockIndex, mb.Hash())
	if len(e.reversible) > 0 {
		e.reversible = e.reversible[:len(e.reversible)-1]
	}
	if err := e.store.DeleteTail(uint64(tail.height)); err != nil {
		return nil, err
	}

	reverted := &RevertedMicroBlock{
		Block:           mb,
		PrunedOutputs:   prunedOutputs,
		RecoveredInputs: recoveredInputs,
	}
	e.notifier.Publish(ChainNotification{
		Kind:     KindMicroBlockReverted,
		Epoch:    e.epoch,
		Offset:   mb.Offset,
		Reverted: reverted,
	})
	e.log.Info("micro-block reverted", "height", tail.height)
	return reverted, nil
}

// ResolveOutput follows the UTXO index to a live output, returning
// false if hash is unknown (spent or never existed).
func (e *Engine) ResolveOutput(hash crypto.Hash) (types.Output, bool) {
	loc, ok := e.utxo.Lookup(hash)
	if !ok {
		return nil, false
	}
	out, err := e.blocks[loc.Height].block.OutputsTree().Lookup(loc.Path)
	if err != nil {
		return nil, false
	}
	return out, true
}

// Range returns at most count blocks beginning at the block after
// startingHash; it returns ErrUnknownStart if startingHash is unknown.
func (e *Engine) Range(startingHash crypto.Hash, count int) ([]types.Block, error) {
	startHeight, ok := e.blockIndex[startingHash]
	if !ok {
		return nil, ErrUnknownStart
	}
	var out []types.Block
	for _, sb := range e.blocks {
		if sb.height <= startHeight {
			continue
		}
		out = append(out, sb.block)
		if len(out) == count {
			break
		}
	}
	return out, nil
}

func (e *Engine) checkLinkage(hdr types.BaseHeader, hash crypto.Hash) error {
	if hdr.Previous != e.tipHash() {
		return ErrPreviousHashMismatch
	}
	if _, ok := e.blockIndex[hash]; ok {
		return ErrBlockHashCollision
	}
	return nil
}

// checkLocalBalance performs step 6: fee_a(monetary_adjustment) +
// burned_block - created_block must equal gamma*G.
func (e *Engine) checkLocalBalance(mon types.MonetaryFields, burnedBlock, createdBlock crypto.ECp) error {
	lhs := crypto.CommitSum(crypto.FeeA(mon.MonetaryAdjustment), burnedBlock)
	lhs = crypto.CommitSub(lhs, createdBlock)
	rhs := crypto.GammaG(&mon.Gamma)
	if !crypto.Equal(lhs, rhs) {
		return ErrInvalidBlockBalance
	}
	return nil
}

// checkGlobalBalance performs step 7: invariant I2 over the candidate
// running accumulators.
func checkGlobalBalance(created, burned crypto.ECp, gamma crypto.Fr, monetaryAdjustment int64) error {
	lhs := crypto.CommitSum(crypto.FeeA(monetaryAdjustment), burned)
	lhs = crypto.CommitSub(lhs, created)
	rhs := crypto.GammaG(&gamma)
	if !crypto.Equal(lhs, rhs) {
		return ErrInvalidBlockBalance
	}
	return nil
}
