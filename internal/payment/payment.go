package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the reconciliation state of one real-world payment attempt.
// Approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Source identifies which producer sighted the payment first.
type Source string

const (
	SourceGateway Source = "gateway_webhook"
	SourcePOS     Source = "pos_direct"
)

// Currency selects the target ledger: cash posts to the drawer, virtual to
// the wallet.
type Currency string

const (
	CurrencyCash    Currency = "cash"
	CurrencyVirtual Currency = "virtual"
)

var (
	ErrNotFound = errors.New("payment not found")

	// ErrInvalidAmount rejects sightings whose amount could never post to
	// the journal, which only accepts positive entries.
	ErrInvalidAmount = errors.New("payment amount must be positive")

	// ErrMissingLedger rejects record-creating sightings that carry no
	// target ledger. A record without one could be approved but never
	// posted.
	ErrMissingLedger = errors.New("payment ledger id is required")
)

// StateConflictError reports a contradictory terminal transition, e.g. a
// rejection notification for a key already marked approved. It indicates a
// genuine double-booking risk and is always surfaced for manual review,
// never auto-resolved.
type StateConflictError struct {
	Key       string
	Current   Status
	Requested Status
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("payment %s is %s, refusing transition to %s", e.Key, e.Current, e.Requested)
}

// Record tracks one real-world payment attempt across gateway and direct
// POS sources, keyed by its idempotency key. At most one Record exists per
// key and at most one journal entry is ever posted from it.
type Record struct {
	IdempotencyKey string
	RestaurantID   string
	LedgerID       uuid.UUID
	Amount         decimal.Decimal
	Currency       Currency
	Status         Status
	Source         Source
	Author         string
	LinkedEntryID  *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Linked reports whether a journal entry has been posted for this record.
func (r *Record) Linked() bool {
	return r.LinkedEntryID != nil
}

// GatewayKey derives the idempotency key for a gateway-confirmed payment
// deterministically, so webhook retries and the settlement import land on
// the same record.
func GatewayKey(restaurantID, orderRef, gatewayTxID string) string {
	return fmt.Sprintf("gw:%s:%s:%s", restaurantID, orderRef, gatewayTxID)
}

// DirectKey derives the idempotency key for a directly-registered POS sale.
// The nonce is generated once by the POS client so a timed-out resubmission
// reuses the same key.
func DirectKey(restaurantID string, at time.Time, nonce string) string {
	return fmt.Sprintf("pos:%s:%d:%s", restaurantID, at.UTC().Unix(), nonce)
}
