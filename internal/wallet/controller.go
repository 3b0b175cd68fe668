// Copyright 2025 Veilchain Protocol
//
// Wallet control API: the JSON tagged-union request/response envelope
// spec.md §6 describes for the wallet's external control socket,
// correlated by a google/uuid request id the way the teacher's
// pkg/database repositories correlate proof-artifact rows, applied
// here to request/response pairs instead of database records.

package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/veilchain/veil/internal/crypto"
	"github.com/veilchain/veil/internal/types"
)

// RequestKind discriminates the control request sum (spec.md §6).
type RequestKind string

const (
	ReqPayment        RequestKind = "payment"
	ReqPublicPayment   RequestKind = "public_payment"
	ReqSecurePayment   RequestKind = "secure_payment"
	ReqStake           RequestKind = "stake"
	ReqStakeAll        RequestKind = "stake_all"
	ReqUnstake         RequestKind = "unstake"
	ReqUnstakeAll      RequestKind = "unstake_all"
	ReqCloakAll        RequestKind = "cloak_all"
	ReqBalanceInfo     RequestKind = "balance_info"
	ReqUnspentInfo     RequestKind = "unspent_info"
	ReqHistoryInfo     RequestKind = "history_info"
	ReqAccountInfo     RequestKind = "account_info"
	ReqGetRecovery     RequestKind = "get_recovery"
	ReqChangePassword  RequestKind = "change_password"
	ReqSeal            RequestKind = "seal"
	ReqUnseal          RequestKind = "unseal"
	ReqDisable         RequestKind = "disable"
)

// requestsAllowedWhileSealed is the allow-list a sealed account still
// answers (spec.md §7 "Account is sealed").
var requestsAllowedWhileSealed = map[RequestKind]bool{
	ReqUnseal:      true,
	ReqAccountInfo: true,
	ReqDisable:     true,
}

// Request is one control envelope. Only the fields relevant to Kind
// are populated; unused fields are left at their zero value.
type Request struct {
	ID   uuid.UUID   `json:"id"`
	Kind RequestKind `json:"kind"`

	Recipient     []byte `json:"recipient,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
	Comment       string `json:"comment,omitempty"`
	Validator     []byte `json:"validator,omitempty"`
	StartingFrom  int64  `json:"starting_from,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Password      string `json:"password,omitempty"`
	NewPassword   string `json:"new_password,omitempty"`
}

// Response is one control envelope reply. Exactly one non-error field
// set is meaningful, selected by the originating request's Kind.
type Response struct {
	ID uuid.UUID `json:"id"`

	Error string `json:"error,omitempty"`

	TxHash        []byte            `json:"tx_hash,omitempty"`
	Balance       *BalanceInfo      `json:"balance,omitempty"`
	Unspent       []UnspentInfo     `json:"unspent,omitempty"`
	History       []HistoryEntry    `json:"history,omitempty"`
	Account       *AccountInfo      `json:"account,omitempty"`
	Recovery      string            `json:"recovery,omitempty"`
}

// BalanceInfo answers balance_info.
type BalanceInfo struct {
	Available int64 `json:"available"`
	Locked    int64 `json:"locked"`
	Pending   int64 `json:"pending"`
}

// UnspentInfo answers unspent_info.
type UnspentInfo struct {
	OutputHash string `json:"output_hash"`
	Kind       string `json:"kind"`
	Amount     int64  `json:"amount"`
}

// HistoryEntry answers history_info.
type HistoryEntry struct {
	Timestamp int64  `json:"timestamp"`
	TxHash    string `json:"tx_hash"`
	Direction string `json:"direction"`
	Amount    int64  `json:"amount"`
}

// AccountInfo answers account_info. Notably this is answered even
// while sealed (spec.md §7).
type AccountInfo struct {
	PublicKey string `json:"public_key"`
	Sealed    bool   `json:"sealed"`
	Epoch     uint64 `json:"epoch"`
}

// Controller dispatches control requests against one open account.
type Controller struct {
	account *Account
	store   *Store
	esc     escrowView
}

// escrowView is the subset of escrow.Escrow a Controller is built
// with. No request handler reads it; stake/unstake requests get the
// not-wired error from Handle.
type escrowView interface {
	ActiveBalance(validator crypto.NetKey, currentEpoch types.Epoch) int64
}

// NewController binds a Controller to an already-open account.
func NewController(account *Account, store *Store, esc escrowView) *Controller {
	return &Controller{account: account, store: store, esc: esc}
}

// Handle dispatches req and returns its reply, gating every request
// except the sealed allow-list behind the account's sealed flag
// (spec.md §7).
func (c *Controller) Handle(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}

	sealed, err := c.store.Sealed(ctx, c.account.PubKey())
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	if sealed && !requestsAllowedWhileSealed[req.Kind] {
		resp.Error = ErrSealed.Error()
		return resp
	}

	switch req.Kind {
	case ReqBalanceInfo:
		return c.handleBalanceInfo(ctx, req)
	case ReqUnspentInfo:
		return c.handleUnspentInfo(ctx, req)
	case ReqHistoryInfo:
		return c.handleHistoryInfo(ctx, req)
	case ReqAccountInfo:
		return c.handleAccountInfo(ctx, req)
	case ReqSeal:
		return c.handleSetSealed(ctx, req, true)
	case ReqUnseal:
		return c.handleSetSealed(ctx, req, false)
	case ReqDisable:
		return c.handleDisable(ctx, req)
	default:
		resp.Error = fmt.Sprintf("wallet: control request kind %q not yet wired to a chain submission path", req.Kind)
		return resp
	}
}

func (c *Controller) handleBalanceInfo(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}
	rows, err := c.store.ListUnspent(ctx, c.account.PubKey())
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	var available int64
	for _, r := range rows {
		available += r.Amount
	}
	resp.Balance = &BalanceInfo{Available: available}
	return resp
}

func (c *Controller) handleUnspentInfo(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}
	rows, err := c.store.ListUnspent(ctx, c.account.PubKey())
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	out := make([]UnspentInfo, len(rows))
	for i, r := range rows {
		out[i] = UnspentInfo{
			OutputHash: fmt.Sprintf("%x", r.OutputHash.Bytes()),
			Kind:       kindName(r.Kind),
			Amount:     r.Amount,
		}
	}
	resp.Unspent = out
	return resp
}

func (c *Controller) handleHistoryInfo(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}
	rows, err := c.store.ListHistory(ctx, c.account.PubKey(), types.Timestamp(req.StartingFrom), req.Limit)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	out := make([]HistoryEntry, len(rows))
	for i, r := range rows {
		direction := "incoming"
		if r.Direction == HistoryOutgoing {
			direction = "outgoing"
		}
		out[i] = HistoryEntry{
			Timestamp: int64(r.Timestamp),
			TxHash:    fmt.Sprintf("%x", r.TxHash.Bytes()),
			Direction: direction,
			Amount:    r.Amount,
		}
	}
	resp.History = out
	return resp
}

func (c *Controller) handleAccountInfo(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}
	sealed, err := c.store.Sealed(ctx, c.account.PubKey())
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	epoch, err := c.store.Epoch(ctx, c.account.PubKey())
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Account = &AccountInfo{
		PublicKey: fmt.Sprintf("%x", c.account.PubKey().Bytes()),
		Sealed:    sealed,
		Epoch:     uint64(epoch),
	}
	return resp
}

func (c *Controller) handleSetSealed(ctx context.Context, req Request, sealed bool) Response {
	resp := Response{ID: req.ID}
	if err := c.store.SetSealed(ctx, c.account.PubKey(), sealed); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// handleDisable sets the same sealed flag that seal sets, so a later
// unseal request (allowed while sealed) clears it again.
func (c *Controller) handleDisable(ctx context.Context, req Request) Response {
	return c.handleSetSealed(ctx, req, true)
}

func kindName(k types.OutputKind) string {
	switch k {
	case types.KindPaymentOutput:
		return "payment"
	case types.KindPublicPaymentOutput:
		return "public_payment"
	case types.KindStakeOutput:
		return "stake"
	default:
		return "unknown"
	}
}

// MarshalResponse is a convenience wrapper so transports that speak
// raw bytes (a unix socket, a websocket) don't each reimplement JSON
// framing.
func MarshalResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}
