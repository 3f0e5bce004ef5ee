package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxAppendAttempts bounds optimistic-concurrency retries before the
// conflict is surfaced to the caller.
const maxAppendAttempts = 3

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=ledger
type Repository interface {
	CreateLedger(ctx context.Context, l *Ledger) error
	GetLedger(ctx context.Context, id uuid.UUID) (*Ledger, error)

	// AppendEntry inserts the entry and bumps the ledger version in one
	// transaction, conditional on the version the caller read. A lost race
	// is reported as ErrWriteConflict, a closed ledger as ErrClosed.
	AppendEntry(ctx context.Context, ledgerID uuid.UUID, version int64, e *Entry) error

	ListEntries(ctx context.Context, ledgerID uuid.UUID, since *time.Time) ([]*Entry, error)
	ListEntriesInRange(ctx context.Context, ledgerID uuid.UUID, filter RangeFilter) ([]*Entry, error)

	// SumEntries returns the income and withdrawal totals for the ledger.
	SumEntries(ctx context.Context, ledgerID uuid.UUID) (incomes, withdrawals decimal.Decimal, err error)

	// CloseLedger sets the closing amount, conditional on the ledger still
	// being open. A second close is reported as ErrClosed.
	CloseLedger(ctx context.Context, ledgerID uuid.UUID, declared decimal.Decimal) error
}

// RangeFilter selects entries by creation time, paginated. Entries are
// always returned in createdAt order.
type RangeFilter struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type OpenParams struct {
	RestaurantID  string
	Kind          Kind
	Period        string
	OpeningAmount decimal.Decimal
}

// Open starts a new drawer or wallet for an operating period. The opening
// amount is immutable afterwards.
func (s *Service) Open(ctx context.Context, params OpenParams) (*Ledger, error) {
	if params.OpeningAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	l := &Ledger{
		RestaurantID:  params.RestaurantID,
		Kind:          params.Kind,
		Period:        params.Period,
		OpeningAmount: params.OpeningAmount,
	}
	if err := s.repo.CreateLedger(ctx, l); err != nil {
		return nil, err
	}

	return l, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Ledger, error) {
	return s.repo.GetLedger(ctx, id)
}

type AppendParams struct {
	Type   EntryType
	Amount decimal.Decimal
	Note   string
	Author string
}

// Append posts one immutable entry to an open ledger. Concurrent appends
// against the same ledger are retried on write conflict; after
// maxAppendAttempts the conflict is returned to the caller as transient.
func (s *Service) Append(ctx context.Context, ledgerID uuid.UUID, params AppendParams) (*Entry, error) {
	if !params.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	if params.Type != TypeIncome && params.Type != TypeWithdrawal {
		return nil, fmt.Errorf("unknown entry type: %s", params.Type)
	}

	var lastErr error

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		l, err := s.repo.GetLedger(ctx, ledgerID)
		if err != nil {
			return nil, err
		}

		if l.Closed() {
			return nil, ErrClosed
		}

		e := &Entry{
			LedgerID: ledgerID,
			Type:     params.Type,
			Amount:   params.Amount,
			Note:     params.Note,
			Author:   params.Author,
		}

		err = s.repo.AppendEntry(ctx, ledgerID, l.Version, e)
		if err == nil {
			return e, nil
		}

		if !errors.Is(err, ErrWriteConflict) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("append to ledger %s: %w", ledgerID, lastErr)
}

// Entries returns the journal in insertion order. Append order is
// chronological order because entries are immutable and never reordered.
func (s *Service) Entries(ctx context.Context, ledgerID uuid.UUID, since *time.Time) ([]*Entry, error) {
	if _, err := s.repo.GetLedger(ctx, ledgerID); err != nil {
		return nil, err
	}

	return s.repo.ListEntries(ctx, ledgerID, since)
}

// EntriesInRange is the paginated read surface for reporting.
func (s *Service) EntriesInRange(ctx context.Context, ledgerID uuid.UUID, filter RangeFilter) ([]*Entry, error) {
	return s.repo.ListEntriesInRange(ctx, ledgerID, filter)
}

// Balance derives the current balance from the journal:
// opening + sum(incomes) - sum(withdrawals). It is never cached as a
// mutable field, so it cannot drift from the journal.
func (s *Service) Balance(ctx context.Context, ledgerID uuid.UUID) (decimal.Decimal, error) {
	l, err := s.repo.GetLedger(ctx, ledgerID)
	if err != nil {
		return decimal.Zero, err
	}

	incomes, withdrawals, err := s.repo.SumEntries(ctx, ledgerID)
	if err != nil {
		return decimal.Zero, err
	}

	return l.OpeningAmount.Add(incomes).Sub(withdrawals), nil
}

// CloseShift declares the counted closing amount and makes the ledger
// terminal. The declared amount is stored as-is; any discrepancy against the
// computed balance is surfaced as Variance, never silently corrected.
//
// Closing twice is a no-op: the second call returns the original close
// result with AlreadyClosed set, regardless of the amount passed.
func (s *Service) CloseShift(ctx context.Context, ledgerID uuid.UUID, declared decimal.Decimal) (*CloseResult, error) {
	err := s.repo.CloseLedger(ctx, ledgerID, declared)
	if err != nil && !errors.Is(err, ErrClosed) {
		return nil, err
	}

	alreadyClosed := errors.Is(err, ErrClosed)

	l, err := s.repo.GetLedger(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	incomes, withdrawals, err := s.repo.SumEntries(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	computed := l.OpeningAmount.Add(incomes).Sub(withdrawals)

	stored := declared
	if l.ClosingAmount != nil {
		stored = *l.ClosingAmount
	}

	return &CloseResult{
		Declared:      stored,
		Computed:      computed,
		Variance:      stored.Sub(computed),
		AlreadyClosed: alreadyClosed,
	}, nil
}
