// Copyright 2025 Veilchain Protocol

package wallet

import (
	"errors"
	"fmt"

	"github.com/veilchain/veil/internal/crypto"
)

// ErrSealed is returned by every control request an account rejects
// while sealed, except unseal/account_info/disable (spec.md §7).
var ErrSealed = errors.New("wallet: account is sealed")

// ErrSnowballBusy reports a control request arriving while a prior
// payment is still assembling its confidential transaction.
var ErrSnowballBusy = errors.New("wallet: payment assembly already in progress")

// NoEnoughToPayError reports an account that cannot cover a requested
// spend out of its currently available (non-locked, non-pending)
// balance.
type NoEnoughToPayError struct {
	Current, Available int64
}

func (e *NoEnoughToPayError) Error() string {
	return fmt.Sprintf("wallet: not enough to pay: requested %d, available %d", e.Current, e.Available)
}

// NoEnoughToStakeError is NoEnoughToPayError's staking counterpart.
type NoEnoughToStakeError struct {
	Current, Available int64
}

func (e *NoEnoughToStakeError) Error() string {
	return fmt.Sprintf("wallet: not enough to stake: requested %d, available %d", e.Current, e.Available)
}

// AmountTooSmallError reports a payment amount that would not clear
// its own fee.
type AmountTooSmallError struct {
	Fee, Amount int64
}

func (e *AmountTooSmallError) Error() string {
	return fmt.Sprintf("wallet: amount %d too small to cover fee %d", e.Amount, e.Fee)
}

// DuplicateAccountError reports an attempt to open an account keypair
// the wallet already manages.
type DuplicateAccountError struct {
	Account crypto.PubKey
}

func (e *DuplicateAccountError) Error() string {
	return fmt.Sprintf("wallet: account %x already open", e.Account.Bytes())
}
