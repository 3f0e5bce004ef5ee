package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes the physical cash drawer from the virtual wallet.
// Both share the same structure and invariants; only the money they track
// differs.
type Kind string

const (
	KindDrawer Kind = "drawer"
	KindWallet Kind = "wallet"
)

// EntryType represents the direction of a journal entry.
type EntryType string

const (
	TypeIncome     EntryType = "income"
	TypeWithdrawal EntryType = "withdrawal"
)

var (
	ErrNotFound      = errors.New("ledger not found")
	ErrClosed        = errors.New("ledger is closed")
	ErrWriteConflict = errors.New("concurrent write on ledger")
	ErrInvalidAmount = errors.New("entry amount must be positive")
)

// Ledger is one drawer or wallet for one operating period.
// ClosingAmount is nil while the shift is open; once set the ledger is
// terminal and rejects further entries.
type Ledger struct {
	ID            uuid.UUID
	RestaurantID  string
	Kind          Kind
	Period        string
	OpeningAmount decimal.Decimal
	ClosingAmount *decimal.Decimal
	Version       int64 // bumped on every successful write, used for conflict detection
	OpenedAt      time.Time
	UpdatedAt     time.Time
}

func (l *Ledger) Closed() bool {
	return l.ClosingAmount != nil
}

// Entry is one immutable monetary movement. Entries are never updated or
// deleted; corrections are new entries whose note references the original.
type Entry struct {
	ID        uuid.UUID
	LedgerID  uuid.UUID
	Type      EntryType
	Amount    decimal.Decimal
	Note      string
	Author    string
	CreatedAt time.Time
}

// CloseResult is returned by CloseShift. Variance is declared minus the
// journal-computed balance; it is reported as-is, never corrected.
type CloseResult struct {
	Declared      decimal.Decimal
	Computed      decimal.Decimal
	Variance      decimal.Decimal
	AlreadyClosed bool
}
