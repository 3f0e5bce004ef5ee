package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxSightingAttempts bounds re-reads when a sighting races another
// producer for the same key. Every retry starts from the stored state, so
// losing a race is always safe.
const maxSightingAttempts = 3

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=payment
type Repository interface {
	// CreateRecord inserts the record if no record exists for its key.
	// Returns false when the key was already taken; the stored record is
	// left untouched.
	CreateRecord(ctx context.Context, r *Record) (bool, error)

	GetRecord(ctx context.Context, key string) (*Record, error)

	// TransitionStatus moves the record from one status to another with a
	// compare-and-set on the current status. Returns false when the stored
	// status no longer matches from.
	TransitionStatus(ctx context.Context, key string, from, to Status) (bool, error)

	// PostLinkedEntry appends the journal entry for an approved record and
	// stores the entry id on the record in one transaction. Posting an
	// already-linked record is a no-op returning the existing entry id.
	PostLinkedEntry(ctx context.Context, key string) (uuid.UUID, error)

	// ListUnlinked returns approved records that have no linked entry yet.
	ListUnlinked(ctx context.Context, limit int) ([]*Record, error)

	ListRecordsInRange(ctx context.Context, restaurantID string, filter RangeFilter) ([]*Record, error)
}

// RangeFilter selects records by creation time, paginated, ordered by
// createdAt.
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

type DirectParams struct {
	IdempotencyKey string
	RestaurantID   string
	LedgerID       uuid.UUID
	Amount         decimal.Decimal
	Currency       Currency
	Author         string
}

// RegisterDirect records a sale settled at the counter. No external
// confirmation round-trip exists, so the record is created approved and
// posted immediately. A resubmission with the same key (e.g. a POS client
// retrying after a network timeout) acknowledges the stored record instead
// of writing a second one.
func (s *Service) RegisterDirect(ctx context.Context, params DirectParams) (*Record, error) {
	if err := validateCreation(params.Amount, params.LedgerID); err != nil {
		return nil, err
	}

	rec := &Record{
		IdempotencyKey: params.IdempotencyKey,
		RestaurantID:   params.RestaurantID,
		LedgerID:       params.LedgerID,
		Amount:         params.Amount,
		Currency:       params.Currency,
		Status:         StatusApproved,
		Source:         SourcePOS,
		Author:         params.Author,
	}

	for attempt := 0; attempt < maxSightingAttempts; attempt++ {
		created, err := s.repo.CreateRecord(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("creating payment record: %w", err)
		}

		if created {
			return s.ensurePosted(ctx, rec)
		}

		existing, err := s.repo.GetRecord(ctx, params.IdempotencyKey)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// The racing record vanished between insert and read;
				// start over.
				continue
			}

			return nil, err
		}

		switch existing.Status {
		case StatusApproved:
			// Client retry of a sale already registered.
			return s.ensurePosted(ctx, existing)

		case StatusPending:
			// The gateway sighted this payment first; settling it at the
			// counter approves it.
			moved, err := s.repo.TransitionStatus(ctx, params.IdempotencyKey, StatusPending, StatusApproved)
			if err != nil {
				return nil, fmt.Errorf("transitioning payment %s: %w", params.IdempotencyKey, err)
			}

			if !moved {
				continue
			}

			existing.Status = StatusApproved

			return s.ensurePosted(ctx, existing)

		default:
			conflict := &StateConflictError{
				Key:       params.IdempotencyKey,
				Current:   existing.Status,
				Requested: StatusApproved,
			}
			slog.Error("conflicting payment state", "key", conflict.Key, "current", conflict.Current, "requested", conflict.Requested)

			return nil, conflict
		}
	}

	return nil, fmt.Errorf("payment %s: sighting retries exhausted", params.IdempotencyKey)
}

// Notification is one sighting from the gateway feed. Delivery is
// at-least-once and unordered across retries; Status is already mapped from
// the gateway's vocabulary by the transport layer.
type Notification struct {
	IdempotencyKey string
	RestaurantID   string
	LedgerID       uuid.UUID
	Amount         decimal.Decimal
	Currency       Currency
	Status         Status
}

// HandleNotification applies one gateway sighting to the per-key state
// machine: unseen keys create a record, pending records move to a terminal
// state via compare-and-set, duplicates acknowledge without writing, and
// contradictory terminal transitions surface a StateConflictError.
func (s *Service) HandleNotification(ctx context.Context, n Notification) (*Record, error) {
	for attempt := 0; attempt < maxSightingAttempts; attempt++ {
		rec, err := s.repo.GetRecord(ctx, n.IdempotencyKey)

		switch {
		case errors.Is(err, ErrNotFound):
			// Only a record-creating sighting needs full payment context;
			// status-only callbacks for known keys carry just key and
			// status.
			if err := validateCreation(n.Amount, n.LedgerID); err != nil {
				return nil, err
			}

			rec = &Record{
				IdempotencyKey: n.IdempotencyKey,
				RestaurantID:   n.RestaurantID,
				LedgerID:       n.LedgerID,
				Amount:         n.Amount,
				Currency:       n.Currency,
				Status:         n.Status,
				Source:         SourceGateway,
				Author:         "gateway",
			}

			created, err := s.repo.CreateRecord(ctx, rec)
			if err != nil {
				return nil, fmt.Errorf("creating payment record: %w", err)
			}

			if !created {
				// Lost the creation race; re-read and classify.
				continue
			}

		case err != nil:
			return nil, err

		case rec.Status == n.Status || n.Status == StatusPending:
			// Duplicate sighting, acknowledged without reprocessing.

		case rec.Status == StatusPending:
			moved, err := s.repo.TransitionStatus(ctx, n.IdempotencyKey, StatusPending, n.Status)
			if err != nil {
				return nil, fmt.Errorf("transitioning payment %s: %w", n.IdempotencyKey, err)
			}

			if !moved {
				// A concurrent transition won; re-read and classify.
				continue
			}

			rec.Status = n.Status

		default:
			conflict := &StateConflictError{
				Key:       n.IdempotencyKey,
				Current:   rec.Status,
				Requested: n.Status,
			}
			slog.Error("conflicting payment state", "key", conflict.Key, "current", conflict.Current, "requested", conflict.Requested)

			return nil, conflict
		}

		if rec.Status != StatusApproved {
			return rec, nil
		}

		return s.ensurePosted(ctx, rec)
	}

	return nil, fmt.Errorf("payment %s: sighting retries exhausted", n.IdempotencyKey)
}

// validateCreation guards every path that can write a new record. A record
// admitted with a non-positive amount or no ledger would pass approval and
// then fail posting on every attempt, leaving it approved-and-unlinked in a
// way no sweep can repair.
func validateCreation(amount decimal.Decimal, ledgerID uuid.UUID) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if ledgerID == uuid.Nil {
		return ErrMissingLedger
	}

	return nil
}

func (s *Service) Get(ctx context.Context, key string) (*Record, error) {
	return s.repo.GetRecord(ctx, key)
}

// RecordsInRange is the paginated read surface for reporting.
func (s *Service) RecordsInRange(ctx context.Context, restaurantID string, filter RangeFilter) ([]*Record, error) {
	return s.repo.ListRecordsInRange(ctx, restaurantID, filter)
}

// ensurePosted guarantees the exactly-once journal effect for an approved
// record. The entry append and the linked-entry association commit in one
// store transaction; an approved record that crashes before this point is
// repaired by the sweep.
func (s *Service) ensurePosted(ctx context.Context, rec *Record) (*Record, error) {
	if rec.Linked() {
		return rec, nil
	}

	entryID, err := s.repo.PostLinkedEntry(ctx, rec.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("posting payment %s: %w", rec.IdempotencyKey, err)
	}

	rec.LinkedEntryID = &entryID

	return rec, nil
}

// Sweep repairs approved records that have no linked journal entry, e.g.
// after a crash between approval and posting. It runs off the write path;
// approved state is durable before the sweep ever sees it.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	records, err := s.repo.ListUnlinked(ctx, 100)
	if err != nil {
		return 0, fmt.Errorf("listing unlinked payments: %w", err)
	}

	repaired := 0

	for _, rec := range records {
		if _, err := s.repo.PostLinkedEntry(ctx, rec.IdempotencyKey); err != nil {
			slog.Error("sweep could not post payment", "key", rec.IdempotencyKey, "error", err)
			continue
		}

		repaired++
	}

	return repaired, nil
}
