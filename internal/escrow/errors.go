// Copyright 2025 Veilchain Protocol

package escrow

import (
	"errors"
	"fmt"

	"github.com/veilchain/veil/internal/crypto"
)

// ErrStakeNotFound is returned by Unstake when no stake record exists
// for the given (validator, output hash) pair.
var ErrStakeNotFound = errors.New("escrow: stake not found")

// LockedStakeError reports that a transaction attempted to spend more
// of a validator's stake than is currently unlocked. ExpectedActive is
// the active balance the spend implies; ActualActive is the balance
// that is actually still bonded and therefore immovable.
type LockedStakeError struct {
	Validator      crypto.NetKey
	ExpectedActive int64
	ActualActive   int64
}

func (e *LockedStakeError) Error() string {
	return fmt.Sprintf("escrow: stake locked for validator %s: expected active balance %d, actual active balance %d",
		e.Validator.String(), e.ExpectedActive, e.ActualActive)
}
