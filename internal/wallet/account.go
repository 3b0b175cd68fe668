// Copyright 2025 Veilchain Protocol
//
// Wallet account state machine (spec.md §4.G): the single task that
// owns one account's view of its own outputs, driven entirely by the
// chain engine's notification stream (internal/chain/notify.go). No
// teacher file runs an event-driven reconciliation loop like this one;
// the subscribe-then-select shape is grounded on the same go-ethereum
// event.Subscription contract the notifier itself is built on (a
// subscriber drains its channel until the subscription's Err()
// channel fires), applied here to
// wallet bookkeeping instead of new-block propagation.

package wallet

import (
	"context"
	"fmt"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/veilchain/veil/internal/chain"
	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/types"
)

// pendingTx tracks one transaction this account submitted, indexed by
// the inputs it claims and the outputs it produces so an applied
// block (which carries only flattened input/output hashes, not
// transaction boundaries) can be matched back to it.
type pendingTx struct {
	tx          *types.Transaction
	submittedAt types.Timestamp
	status      TransactionStatus
	epoch       types.Epoch
	offset      types.Offset
}

// Account is one wallet account's reconciliation loop. It is owned
// exclusively by the goroutine running Run (spec.md §5); all mutation
// happens on that goroutine, driven by notifications and its own
// timers.
type Account struct {
	log cmtlog.Logger

	secret crypto.SecKey
	pubkey crypto.PubKey

	store    *Store
	notifier *chain.Notifier

	pendingUTXOTime time.Duration
	resendInterval  time.Duration

	pendingByTx map[crypto.Hash]*pendingTx
	byInput     map[crypto.Hash]crypto.Hash
	byOutput    map[crypto.Hash]crypto.Hash

	resubmit func(*types.Transaction) error
}

// NewAccount constructs an account reconciliation loop. resubmit is
// called by the resend timer to re-announce a still-pending
// transaction to the mempool; it may be nil if the caller does not
// want automatic resubmission.
func NewAccount(log cmtlog.Logger, secret crypto.SecKey, store *Store, notifier *chain.Notifier, pendingUTXOTime, resendInterval time.Duration, resubmit func(*types.Transaction) error) *Account {
	return &Account{
		log:             log.With("module", "wallet", "account", secret.PubKey().Bytes()),
		secret:          secret,
		pubkey:          secret.PubKey(),
		store:           store,
		notifier:        notifier,
		pendingUTXOTime: pendingUTXOTime,
		resendInterval:  resendInterval,
		pendingByTx:     make(map[crypto.Hash]*pendingTx),
		byInput:         make(map[crypto.Hash]crypto.Hash),
		byOutput:        make(map[crypto.Hash]crypto.Hash),
		resubmit:        resubmit,
	}
}

// PubKey returns the account's payment public key.
func (a *Account) PubKey() crypto.PubKey { return a.pubkey }

// TrackOutgoing records a transaction the account just submitted to
// the mempool, status Created, so future notifications can recognize
// it moving through Accepted/Prepared/Committed (spec.md §4.G).
func (a *Account) TrackOutgoing(ctx context.Context, tx *types.Transaction, now types.Timestamp) error {
	p := &pendingTx{tx: tx, submittedAt: now, status: StatusCreated}
	h := tx.Hash()
	a.pendingByTx[h] = p
	for _, in := range tx.InputHashes {
		a.byInput[in] = h
	}
	for _, out := range tx.Outputs {
		a.byOutput[out.Hash()] = h
	}
	return a.store.PutPending(ctx, a.pubkey, PendingRow{
		TxHash:      h,
		SubmittedAt: now,
		Status:      StatusCreated,
		Blob:        tx.SigningBytes(),
	})
}

// Run drains the account's notification subscription and timers until
// ctx is cancelled.
func (a *Account) Run(ctx context.Context) error {
	notifications := make(chan chain.ChainNotification, 64)
	sub := a.notifier.Subscribe(notifications)
	defer sub.Unsubscribe()

	resend := time.NewTicker(a.resendInterval)
	defer resend.Stop()
	age := time.NewTicker(a.pendingUTXOTime)
	defer age.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case notif := <-notifications:
			if err := a.handleNotification(ctx, notif); err != nil {
				a.log.Error("handle notification", "err", err)
			}
		case <-resend.C:
			a.resendPending(ctx)
		case <-age.C:
			a.agePending(ctx)
		}
	}
}

func (a *Account) handleNotification(ctx context.Context, notif chain.ChainNotification) error {
	switch notif.Kind {
	case chain.KindMicroBlockPrepared:
		return a.applyBlock(ctx, notif.MicroBlock.Outputs.Leafs(), notif.MicroBlock.InputHashes, notif.MicroBlock.Timestamp, StatusPrepared, notif.Epoch, notif.Offset, notif.ConflictedTxs)
	case chain.KindMacroBlockCommitted:
		if err := a.applyBlock(ctx, notif.MacroBlock.Outputs.Leafs(), notif.MacroBlock.InputHashes, notif.MacroBlock.Timestamp, StatusCommitted, notif.Epoch, notif.Offset, notif.ConflictedTxs); err != nil {
			return err
		}
		return a.finalizeEpoch(ctx, notif.Epoch)
	case chain.KindMicroBlockReverted:
		return a.revertBlock(ctx, notif.Reverted)
	default:
		return fmt.Errorf("wallet: unknown notification kind %d", notif.Kind)
	}
}

// applyBlock walks a block's outputs and inputs, updating the unspent
// set, history and any matched pending transaction's status. A
// touched transaction moves to matchedStatus unless conflicted names
// it, in which case it moves to StatusConflicted instead (spec.md
// §4.F prune, §4.G, invariant P5).
func (a *Account) applyBlock(ctx context.Context, outputs []types.Output, inputs []crypto.Hash, ts types.Timestamp, matchedStatus TransactionStatus, epoch types.Epoch, offset types.Offset, conflicted []crypto.Hash) error {
	touched := make(map[crypto.Hash]struct{})

	conflictedSet := make(map[crypto.Hash]struct{}, len(conflicted))
	for _, h := range conflicted {
		conflictedSet[h] = struct{}{}
	}

	for _, out := range outputs {
		amount, owned := a.ownedAmount(out)
		if !owned {
			continue
		}
		h := out.Hash()
		if err := a.store.PutUnspent(ctx, a.pubkey, UnspentRow{
			OutputHash: h,
			Kind:       out.Kind(),
			Amount:     amount,
			Blob:       []byte{},
		}); err != nil {
			return err
		}
		if err := a.store.PutHistory(ctx, a.pubkey, HistoryRow{
			Timestamp: ts,
			TxHash:    h,
			Direction: HistoryIncoming,
			Amount:    amount,
			Blob:      []byte{},
		}); err != nil {
			return err
		}
		if txHash, ok := a.byOutput[h]; ok {
			touched[txHash] = struct{}{}
		}
	}

	for _, in := range inputs {
		if err := a.store.DeleteUnspent(ctx, a.pubkey, in); err != nil {
			return err
		}
		if txHash, ok := a.byInput[in]; ok {
			touched[txHash] = struct{}{}
		}
	}

	for txHash := range touched {
		status := matchedStatus
		if _, ok := conflictedSet[txHash]; ok {
			status = StatusConflicted
		}
		if err := a.transitionPending(ctx, txHash, status, epoch, offset); err != nil {
			return err
		}
		if status == StatusConflicted {
			if p, ok := a.pendingByTx[txHash]; ok {
				delete(a.pendingByTx, txHash)
				a.forgetIndices(p.tx)
				if err := a.store.DeletePending(ctx, a.pubkey, txHash); err != nil {
					return err
				}
			}
		}
	}
	return a.store.SetBalanceChanged(ctx, a.pubkey, true)
}

// revertBlock undoes applyBlock's effects for a reverted micro-block
// (spec.md §4.D RevertMicro, §4.G): pruned outputs this account owned
// are removed from unspent, recovered inputs are reinstated, and any
// transaction that had reached Prepared against this block returns to
// Created so it can be resubmitted (spec.md §4.G, §8 revert scenario).
func (a *Account) revertBlock(ctx context.Context, reverted *chain.RevertedMicroBlock) error {
	touched := make(map[crypto.Hash]struct{})

	for _, out := range reverted.PrunedOutputs {
		if _, owned := a.ownedAmount(out); !owned {
			continue
		}
		h := out.Hash()
		if err := a.store.DeleteUnspent(ctx, a.pubkey, h); err != nil {
			return err
		}
		if txHash, ok := a.byOutput[h]; ok {
			touched[txHash] = struct{}{}
		}
	}

	for _, in := range reverted.RecoveredInputs {
		amount, owned := a.ownedAmount(in)
		if !owned {
			continue
		}
		if err := a.store.PutUnspent(ctx, a.pubkey, UnspentRow{
			OutputHash: in.Hash(),
			Kind:       in.Kind(),
			Amount:     amount,
			Blob:       []byte{},
		}); err != nil {
			return err
		}
		if txHash, ok := a.byInput[in.Hash()]; ok {
			touched[txHash] = struct{}{}
		}
	}

	for txHash := range touched {
		if err := a.transitionPending(ctx, txHash, StatusRollback, 0, 0); err != nil {
			return err
		}
	}
	return a.store.SetBalanceChanged(ctx, a.pubkey, true)
}

func (a *Account) transitionPending(ctx context.Context, txHash crypto.Hash, status TransactionStatus, epoch types.Epoch, offset types.Offset) error {
	p, ok := a.pendingByTx[txHash]
	if !ok {
		return nil
	}
	if status == StatusRollback {
		p.status = StatusCreated
	} else {
		p.status = status
	}
	p.epoch, p.offset = epoch, offset
	return a.store.PutPending(ctx, a.pubkey, PendingRow{
		TxHash:      txHash,
		SubmittedAt: p.submittedAt,
		Status:      p.status,
		Epoch:       p.epoch,
		Offset:      p.offset,
		Blob:        p.tx.SigningBytes(),
	})
}

func (a *Account) finalizeEpoch(ctx context.Context, epoch types.Epoch) error {
	for txHash, p := range a.pendingByTx {
		if p.status == StatusCommitted {
			delete(a.pendingByTx, txHash)
			a.forgetIndices(p.tx)
			if err := a.store.DeletePending(ctx, a.pubkey, txHash); err != nil {
				return err
			}
		}
	}
	return a.store.SetEpoch(ctx, a.pubkey, epoch)
}

// agePending marks transactions that have sat in Created beyond
// pendingUTXOTime as Rejected: the mempool evidently never admitted
// them (spec.md §4.G pending-UTXO aging).
func (a *Account) agePending(ctx context.Context) {
	now := time.Now().UnixNano()
	cutoff := types.Timestamp(now) - types.Timestamp(a.pendingUTXOTime.Nanoseconds())
	for txHash, p := range a.pendingByTx {
		if p.status == StatusCreated && p.submittedAt < cutoff {
			p.status = StatusRejected
			a.forgetIndices(p.tx)
			if err := a.store.PutPending(ctx, a.pubkey, PendingRow{
				TxHash:      txHash,
				SubmittedAt: p.submittedAt,
				Status:      StatusRejected,
			}); err != nil {
				a.log.Error("age pending", "tx", txHash, "err", err)
			}
		}
	}
}

// resendPending re-announces every transaction still in Created to
// the mempool (spec.md §4.G resend timer), in case the node restarted
// or the original broadcast was dropped.
func (a *Account) resendPending(ctx context.Context) {
	if a.resubmit == nil {
		return
	}
	for _, p := range a.pendingByTx {
		if p.status != StatusCreated {
			continue
		}
		if err := a.resubmit(p.tx); err != nil {
			a.log.Error("resend pending", "tx", p.tx.Hash(), "err", err)
		}
	}
}

func (a *Account) forgetIndices(tx *types.Transaction) {
	for _, in := range tx.InputHashes {
		delete(a.byInput, in)
	}
	for _, out := range tx.Outputs {
		delete(a.byOutput, out.Hash())
	}
}

// ownedAmount reports whether out belongs to this account and, if so,
// its amount: recipient match for the two clear-amount variants,
// successful payload decryption for confidential payments (spec.md
// §4.G: "successful payload decryption for confidential payment").
func (a *Account) ownedAmount(out types.Output) (int64, bool) {
	switch o := out.(type) {
	case *types.PublicPaymentOutput:
		if !o.Recipient().Equal(a.pubkey) {
			return 0, false
		}
		return o.Amount, true
	case *types.StakeOutput:
		if !o.Recipient().Equal(a.pubkey) {
			return 0, false
		}
		return o.Amount, true
	case *types.PaymentOutput:
		plaintext, err := crypto.OpenPayload(a.secret, o.EphemeralSeed, o.EncryptedPayload)
		if err != nil {
			return 0, false
		}
		payload, err := types.UnmarshalPaymentPayload(plaintext)
		if err != nil {
			return 0, false
		}
		return payload.Amount, true
	default:
		return 0, false
	}
}
