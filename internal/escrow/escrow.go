// Copyright 2025 Veilchain Protocol
//
// Escrow: validator stake lifecycle and locked-balance queries
// (spec.md §4.C). No teacher file implements staking directly; the
// record layout borrows the validator-metadata shape of the
// teacher's pkg/consensus/types.go ValidatorInfo (NetKey identity,
// amount, bonding/active windows) and the KV-keyed-by-struct
// discipline of pkg/ledger/store.go, applied here to an in-memory map
// since the escrow is owned exclusively by the chain engine's task
// (spec.md §5) and never accessed concurrently.

package escrow

import (
	"sort"
	"sync"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/types"
)

// Record is one validator's stake backing a single (still unspent)
// StakeOutput.
type Record struct {
	Validator       crypto.NetKey
	OutputHash      crypto.Hash
	Amount          int64
	BondingUntil    types.Timestamp
	ActiveUntilEpoch types.Epoch
}

// Escrow maps (validator, output hash) to its stake record.
type Escrow struct {
	mu     sync.Mutex // defensive only; single owning task per spec.md §5
	log    cmtlog.Logger
	byKey  map[string]map[crypto.Hash]*Record // validator.String() -> outputHash -> record
}

// New creates an empty escrow.
func New(log cmtlog.Logger) *Escrow {
	return &Escrow{
		log:   log.With("module", "escrow"),
		byKey: make(map[string]map[crypto.Hash]*Record),
	}
}

func (e *Escrow) bucket(v crypto.NetKey) map[crypto.Hash]*Record {
	k := v.String()
	b, ok := e.byKey[k]
	if !ok {
		b = make(map[crypto.Hash]*Record)
		e.byKey[k] = b
	}
	return b
}

// Stake inserts a stake record. Idempotent if outputHash is already
// present with the same record (spec.md §4.C).
func (e *Escrow) Stake(validator crypto.NetKey, outputHash crypto.Hash, bondingUntil types.Timestamp, activeUntilEpoch types.Epoch, amount int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.bucket(validator)
	if existing, ok := b[outputHash]; ok {
		if existing.Amount == amount && existing.BondingUntil == bondingUntil && existing.ActiveUntilEpoch == activeUntilEpoch {
			return
		}
	}
	b[outputHash] = &Record{
		Validator:        validator,
		OutputHash:       outputHash,
		Amount:           amount,
		BondingUntil:     bondingUntil,
		ActiveUntilEpoch: activeUntilEpoch,
	}
	e.log.Debug("stake recorded", "validator", validator.String(), "output", outputHash, "amount", amount)
}

// Unstake removes a stake record. Fails with *LockedStakeError if the
// bonding period has not elapsed.
func (e *Escrow) Unstake(validator crypto.NetKey, outputHash crypto.Hash, now types.Timestamp) (*Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.bucket(validator)
	rec, ok := b[outputHash]
	if !ok {
		return nil, ErrStakeNotFound
	}
	if rec.BondingUntil > now {
		return nil, &LockedStakeError{Validator: validator, ExpectedActive: 0, ActualActive: rec.Amount}
	}
	delete(b, outputHash)
	e.log.Debug("stake removed", "validator", validator.String(), "output", outputHash)
	return rec, nil
}

// Take removes and returns a stake record without re-checking the
// bonding window, for use by the chain engine at block-commit time
// where the transaction consuming the StakeOutput has already passed
// validate_staking_balance (spec.md §4.D step 8). Unlike Unstake, it
// never returns LockedStakeError.
func (e *Escrow) Take(validator crypto.NetKey, outputHash crypto.Hash) (*Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.bucket(validator)
	rec, ok := b[outputHash]
	if !ok {
		return nil, ErrStakeNotFound
	}
	delete(b, outputHash)
	return rec, nil
}

// Restore re-inserts a previously removed record verbatim, used by
// revert_micro to undo the Take that removed it (spec.md §4.D).
func (e *Escrow) Restore(rec *Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bucket(rec.Validator)[rec.OutputHash] = rec
}

// Remove undoes a Stake call, used by revert_micro to undo the
// creation of a StakeOutput.
func (e *Escrow) Remove(validator crypto.NetKey, outputHash crypto.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.bucket(validator), outputHash)
}

// ActiveBalance sums the amount of every stake record for validator
// whose active_until_epoch has not yet elapsed at currentEpoch.
func (e *Escrow) ActiveBalance(validator crypto.NetKey, currentEpoch types.Epoch) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeBalanceLocked(validator, currentEpoch)
}

func (e *Escrow) activeBalanceLocked(validator crypto.NetKey, currentEpoch types.Epoch) int64 {
	var sum int64
	for _, rec := range e.sortedLocked(validator) {
		if rec.ActiveUntilEpoch > currentEpoch {
			sum += rec.Amount
		}
	}
	return sum
}

// totalBalanceLocked sums every stake record for validator, active or
// not. Callers must hold e.mu.
func (e *Escrow) totalBalanceLocked(validator crypto.NetKey) int64 {
	var sum int64
	for _, rec := range e.byKey[validator.String()] {
		sum += rec.Amount
	}
	return sum
}

// sortedLocked returns a validator's records ordered by output hash
// ascending, the tie-break spec.md §4.C requires for determinism.
func (e *Escrow) sortedLocked(validator crypto.NetKey) []*Record {
	b := e.byKey[validator.String()]
	out := make([]*Record, 0, len(b))
	for _, r := range b {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OutputHash.Less(out[j].OutputHash)
	})
	return out
}

// ValidateStakingBalance checks, for each validator whose stake
// shrinks (delta < 0), that the shrink only consumes already-unlocked
// stake: the validator's total balance after the delta must not drop
// below its currently active (still-bonded) balance. Violating this
// means the transaction is spending a StakeOutput that is still
// locked, rejected as LockedStake(validator, expected_active,
// actual_active) per spec.md §4.C, §7 and the locked-stake scenario in
// §8 (ExpectedActive is the balance the spend implies, ActualActive is
// the balance that is actually still bonded and cannot move).
func (e *Escrow) ValidateStakingBalance(deltas map[string]int64, validators map[string]crypto.NetKey, currentEpoch types.Epoch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, delta := range deltas {
		if delta >= 0 {
			continue
		}
		v, ok := validators[key]
		if !ok {
			continue
		}
		active := e.activeBalanceLocked(v, currentEpoch)
		total := e.totalBalanceLocked(v)
		expected := total + delta
		if expected < active {
			return &LockedStakeError{Validator: v, ExpectedActive: expected, ActualActive: active}
		}
	}
	return nil
}

// Multiget sums all stakes (active or not) per validator, used when a
// macro-block publishes the next validator set (spec.md §4.C, §4.D
// step 8).
func (e *Escrow) Multiget(validators []crypto.NetKey) map[string]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]int64, len(validators))
	for _, v := range validators {
		var sum int64
		for _, rec := range e.byKey[v.String()] {
			sum += rec.Amount
		}
		out[v.String()] = sum
	}
	return out
}
