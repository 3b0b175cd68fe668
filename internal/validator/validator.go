// Copyright 2025 Veilchain Protocol
//
// Transaction Validator: the stateless-over-(chain,mempool) admission
// checklist of spec.md §4.E. No teacher file validates transactions
// directly; the early-exit checklist shape and typed-error-per-step
// discipline are grounded on the teacher's ABCI-era request validation
// removed from pkg/consensus (see DESIGN.md), generalized here from
// anchor-bundle admission to UTXO transaction admission.

package validator

import (
	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/crypto/rangeproof"
	"github.com/veilchain/veil/internal/escrow"
	"github.com/veilchain/veil/internal/types"
)

// ChainView is the subset of the chain state engine the validator
// consults; satisfied by *chain.Engine.
type ChainView interface {
	ResolveOutput(hash crypto.Hash) (types.Output, bool)
	Epoch() types.Epoch
}

// MempoolView is the subset of the mempool the validator consults;
// satisfied by *mempool.Mempool.
type MempoolView interface {
	Contains(hash crypto.Hash) bool
	ContainsInput(hash crypto.Hash) bool
	ContainsOutput(hash crypto.Hash) bool
}

// Validate runs the full admission checklist against tx, in the order
// spec.md §4.E prescribes, exiting on the first failure.
func Validate(tx *types.Transaction, mp MempoolView, ch ChainView, esc *escrow.Escrow, prover *rangeproof.Prover, now types.Timestamp, paymentFee, stakeFee int64) error {
	txHash := tx.Hash()

	// Step 1: AlreadyExists.
	if mp.Contains(txHash) {
		return &AlreadyExistsError{TxHash: txHash}
	}

	// Step 2: TooLowFee.
	minFee := outputFees(tx.Outputs, paymentFee, stakeFee)
	if tx.Fee < minFee {
		return &TooLowFeeError{TxHash: txHash, Min: minFee, Got: tx.Fee}
	}

	// Step 3: MissingInput, accumulating stake deltas for consumed
	// StakeOutputs.
	deltas := make(map[string]int64)
	validators := make(map[string]crypto.NetKey)
	inputs := make([]types.Output, len(tx.InputHashes))
	for i, in := range tx.InputHashes {
		out, ok := ch.ResolveOutput(in)
		if !ok || mp.ContainsInput(in) {
			return &MissingInputError{TxHash: txHash, InputHash: in}
		}
		inputs[i] = out
		if so, ok := out.(*types.StakeOutput); ok {
			key := so.Validator.String()
			validators[key] = so.Validator
			deltas[key] -= so.Amount
		}
	}

	// Step 4: OutputHashCollision, accumulating stake deltas for
	// produced StakeOutputs.
	for _, out := range tx.Outputs {
		h := out.Hash()
		if mp.ContainsOutput(h) {
			return &OutputHashCollisionError{TxHash: txHash, OutputHash: h}
		}
		if _, ok := ch.ResolveOutput(h); ok {
			return &OutputHashCollisionError{TxHash: txHash, OutputHash: h}
		}
		if so, ok := out.(*types.StakeOutput); ok {
			if so.Amount <= 0 {
				return &InvalidStakeError{OutputHash: h}
			}
			key := so.Validator.String()
			validators[key] = so.Validator
			deltas[key] += so.Amount
		}
	}

	// Step 5: signature, Pedersen balance, range proofs.
	if err := tx.Validate(prover, inputs); err != nil {
		return err
	}

	// Step 6: escrow locked-balance check (I3).
	if err := esc.ValidateStakingBalance(deltas, validators, ch.Epoch()); err != nil {
		return err
	}

	return nil
}

func outputFees(outputs []types.Output, paymentFee, stakeFee int64) int64 {
	var total int64
	for _, out := range outputs {
		switch out.(type) {
		case *types.StakeOutput:
			total += stakeFee
		default:
			total += paymentFee
		}
	}
	return total
}
