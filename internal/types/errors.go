// Copyright 2025 Veilchain Protocol

package types

import "errors"

// Sentinel errors returned by Transaction.Validate (spec.md §4.E step 5).
var (
	ErrInvalidSignature = errors.New("types: invalid transaction signature")
	ErrInvalidTxBalance = errors.New("types: transaction commitment balance does not close")
	ErrInvalidRangeProof = errors.New("types: invalid range proof")
)
