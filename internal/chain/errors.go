// Copyright 2025 Veilchain Protocol

package chain

import (
	"errors"
	"fmt"

	"github.com/veilchain/veil/internal/crypto"
)

// Sentinel errors returned by the chain state engine (spec.md §4.D, §7).
var (
	// ErrPreviousHashMismatch is returned by ApplyMacro/ApplyMicro when
	// block.Previous does not equal the hash of the current chain tail.
	ErrPreviousHashMismatch = errors.New("chain: previous hash mismatch")

	// ErrBlockHashCollision is returned when a block with the same hash
	// has already been applied.
	ErrBlockHashCollision = errors.New("chain: block hash collision")

	// ErrWrongEpoch is returned by ApplyMacro when block.Epoch is not
	// current_epoch + 1.
	ErrWrongEpoch = errors.New("chain: macro-block epoch out of sequence")

	// ErrOutputHashCollision is returned when a produced output's hash
	// already exists in the UTXO index.
	ErrOutputHashCollision = errors.New("chain: output hash collision")

	// ErrInvalidBlockBalance is returned when a block's local
	// commitment balance does not close over G.
	ErrInvalidBlockBalance = errors.New("chain: invalid block balance")

	// ErrInvalidSignature names a block whose producer or
	// multi-signature does not verify. The engine does not verify block
	// signatures, so ApplyMacro/ApplyMicro never return it.
	ErrInvalidSignature = errors.New("chain: invalid signature")

	// ErrInvalidRangeProof names an output whose range proof does not
	// verify. The engine does not check range proofs, so ApplyMacro/
	// ApplyMicro never return it.
	ErrInvalidRangeProof = errors.New("chain: invalid range proof")

	// ErrEmptyChain is returned by RevertMicro when the chain has no
	// applied blocks.
	ErrEmptyChain = errors.New("chain: chain is empty")

	// ErrRevertMacro is returned by RevertMicro when the tail block is
	// a macro-block, which is never reverted.
	ErrRevertMacro = errors.New("chain: cannot revert a macro-block")

	// ErrUnknownStart is returned by Range when starting_hash is not a
	// known block.
	ErrUnknownStart = errors.New("chain: unknown starting hash")
)

// MissingUTXOError reports that an input hash does not resolve to a
// live UTXO index entry.
type MissingUTXOError struct {
	InputHash crypto.Hash
}

func (e *MissingUTXOError) Error() string {
	return fmt.Sprintf("chain: missing utxo %s", e.InputHash)
}

// GlobalBalanceFatalError reports that invariant I2 failed on the
// candidate accumulators after the block's local balance check
// already passed. This can only happen from programmer error or
// accumulator corruption (spec.md §4.D step 7, §9 Open Question). The
// engine logs the violation at Error level and returns this error
// without mutating state; it does not panic, does not stop the
// process and does not close its subscribers, and it keeps accepting
// calls afterwards.
type GlobalBalanceFatalError struct {
	Height uint64
}

func (e *GlobalBalanceFatalError) Error() string {
	return fmt.Sprintf("chain: FATAL global monetary balance violated at height %d", e.Height)
}
