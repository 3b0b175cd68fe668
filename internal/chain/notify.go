// Copyright 2025 Veilchain Protocol
//
// Chain notification stream (spec.md §4.G, §5, §6): a totally
// ordered, gapless broadcast of MicroBlockPrepared / MicroBlockReverted
// / MacroBlockCommitted events consumed by wallet accounts. Built on
// go-ethereum's event.Feed/Subscription, the same fan-out primitive
// the pack's chain-head-notification code (miner/worker.go across the
// go-ethereum family) uses for its own new-block feed.

package chain

import (
	"github.com/ethereum/go-ethereum/event"

	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/types"
)

// NotificationKind discriminates the ChainNotification sum.
type NotificationKind uint8

const (
	KindMicroBlockPrepared NotificationKind = iota
	KindMicroBlockReverted
	KindMacroBlockCommitted
)

// ChainNotification is the event published to subscribers after every
// committed state change (spec.md §4.G). Exactly one of MicroBlock/
// MacroBlock/Reverted is meaningful, selected by Kind.
type ChainNotification struct {
	Kind NotificationKind

	Epoch  types.Epoch
	Offset types.Offset

	MicroBlock      *types.MicroBlock
	MacroBlock      *types.MacroBlock
	NextFacilitator *types.ValidatorStake
	NextValidators  []types.ValidatorStake

	// Reverted is populated only for KindMicroBlockReverted.
	Reverted *RevertedMicroBlock

	// ConflictedTxs lists the mempool transaction hashes this block's
	// commit pruned whose outputs did not survive intact in it: some
	// other transaction claimed one of their inputs first. Populated
	// only for KindMicroBlockPrepared/KindMacroBlockCommitted; accounts
	// use it to move a touched pending transaction to Conflicted
	// instead of Prepared/Committed (spec.md §4.F, §4.G, invariant P5).
	ConflictedTxs []crypto.Hash
}

// RevertedMicroBlock is emitted by RevertMicro (spec.md §4.D), listing
// what a wallet must undo: outputs that were pruned away and the
// inputs that came back to life.
type RevertedMicroBlock struct {
	Block           *types.MicroBlock
	PrunedOutputs   []types.Output
	RecoveredInputs []types.Output
}

// Notifier publishes ChainNotification events. D emits a notification
// only after its own state change has been committed (spec.md §5); a
// subscriber that registers mid-stream sees every notification from
// that point forward, gapless and in order.
type Notifier struct {
	feed event.Feed
}

// NewNotifier creates an empty notification feed.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers ch to receive every future notification. The
// returned Subscription must be closed by the caller when done.
func (n *Notifier) Subscribe(ch chan<- ChainNotification) event.Subscription {
	return n.feed.Subscribe(ch)
}

// Publish fans notif out to every current subscriber. go-ethereum's
// event.Feed.Send blocks until every subscribed channel has accepted
// notif, so a subscriber whose channel is full delays the publisher.
func (n *Notifier) Publish(notif ChainNotification) {
	n.feed.Send(notif)
}
