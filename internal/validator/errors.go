// Copyright 2025 Veilchain Protocol

package validator

import (
	"fmt"

	"github.com/veilchain/veil/internal/crypto"
)

// AlreadyExistsError reports a transaction already present in the
// mempool (spec.md §4.E step 1, §7).
type AlreadyExistsError struct {
	TxHash crypto.Hash
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("validator: transaction %s already exists", e.TxHash)
}

// TooLowFeeError reports a transaction fee below the sum of its
// output fees (spec.md §4.E step 2, §7).
type TooLowFeeError struct {
	TxHash crypto.Hash
	Min    int64
	Got    int64
}

func (e *TooLowFeeError) Error() string {
	return fmt.Sprintf("validator: transaction %s fee too low: want >= %d, got %d", e.TxHash, e.Min, e.Got)
}

// MissingInputError reports an input hash that does not resolve to a
// live, unclaimed UTXO (spec.md §4.E step 3, §7).
type MissingInputError struct {
	TxHash    crypto.Hash
	InputHash crypto.Hash
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("validator: transaction %s missing input %s", e.TxHash, e.InputHash)
}

// OutputHashCollisionError reports a produced output hash already
// live in the mempool or chain (spec.md §4.E step 4, §7).
type OutputHashCollisionError struct {
	TxHash     crypto.Hash
	OutputHash crypto.Hash
}

func (e *OutputHashCollisionError) Error() string {
	return fmt.Sprintf("validator: transaction %s output %s collides", e.TxHash, e.OutputHash)
}

// InvalidStakeError reports a StakeOutput with a non-positive amount,
// caught before it reaches escrow accounting (spec.md §7). The
// validator key is not checked.
type InvalidStakeError struct {
	OutputHash crypto.Hash
}

func (e *InvalidStakeError) Error() string {
	return fmt.Sprintf("validator: invalid stake output %s", e.OutputHash)
}
