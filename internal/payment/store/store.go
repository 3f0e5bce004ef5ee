package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/tavernapos/cashcore/internal/ledger"
	"github.com/tavernapos/cashcore/internal/payment"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectRecordColumns = `
	p.idempotency_key, p.restaurant_id, p.ledger_id, p.amount, p.currency,
	p.status, p.source, p.author, p.linked_entry_id, p.created_at, p.updated_at
`

func scanRecord(s scanner) (*payment.Record, error) {
	var r payment.Record

	var currency, status, source string

	var linked *uuid.UUID

	if err := s.Scan(
		&r.IdempotencyKey, &r.RestaurantID, &r.LedgerID, &r.Amount, &currency,
		&status, &source, &r.Author, &linked, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Currency = payment.Currency(currency)
	r.Status = payment.Status(status)
	r.Source = payment.Source(source)
	r.LinkedEntryID = linked

	return &r, nil
}

// CreateRecord claims the idempotency key. ON CONFLICT DO NOTHING makes the
// insert race-safe: the loser reports created=false and the stored record
// stays untouched.
func (s *Store) CreateRecord(ctx context.Context, r *payment.Record) (bool, error) {
	query := `
		INSERT INTO payments (idempotency_key, restaurant_id, ledger_id, amount, currency, status, source, author, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		r.IdempotencyKey,
		r.RestaurantID,
		r.LedgerID,
		r.Amount,
		r.Currency,
		r.Status,
		r.Source,
		r.Author,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("creating payment record: %w", err)
	}

	return true, nil
}

func (s *Store) GetRecord(ctx context.Context, key string) (*payment.Record, error) {
	query := `SELECT ` + selectRecordColumns + ` FROM payments p WHERE p.idempotency_key = $1`

	r, err := scanRecord(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, payment.ErrNotFound
		}

		return nil, fmt.Errorf("getting payment record: %w", err)
	}

	return r, nil
}

// TransitionStatus is a compare-and-set on the stored status, so a webhook
// retry racing a direct registration cannot both win the same transition.
func (s *Store) TransitionStatus(ctx context.Context, key string, from, to payment.Status) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1, updated_at = NOW()
		WHERE idempotency_key = $2 AND status = $3
	`

	res, err := s.db.ExecContext(ctx, query, to, key, from)
	if err != nil {
		return false, fmt.Errorf("transitioning payment status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}

	return rows > 0, nil
}

// PostLinkedEntry appends the journal entry for an approved record and
// stores the entry id on the record in one database transaction, so the
// entry and its association are durable together. The record row is locked
// for the duration; a concurrent poster finds the record already linked and
// returns the existing entry id.
func (s *Store) PostLinkedEntry(ctx context.Context, key string) (uuid.UUID, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning posting tx: %w", err)
	}
	defer dbTx.Rollback()

	recQuery := `SELECT ` + selectRecordColumns + ` FROM payments p WHERE p.idempotency_key = $1 FOR UPDATE`

	rec, err := scanRecord(dbTx.QueryRowContext(ctx, recQuery, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return uuid.Nil, payment.ErrNotFound
		}

		return uuid.Nil, fmt.Errorf("locking payment record: %w", err)
	}

	if rec.LinkedEntryID != nil {
		return *rec.LinkedEntryID, nil
	}

	if rec.Status != payment.StatusApproved {
		return uuid.Nil, fmt.Errorf("payment %s is %s, only approved payments post entries", key, rec.Status)
	}

	bumpQuery := `
		UPDATE ledgers
		SET version = version + 1, updated_at = NOW()
		WHERE id = $1 AND closing_amount IS NULL
	`

	res, err := dbTx.ExecContext(ctx, bumpQuery, rec.LedgerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bumping ledger version: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return uuid.Nil, fmt.Errorf("reading rows affected: %w", err)
	}

	if rows == 0 {
		return uuid.Nil, s.classifyLedgerFailure(ctx, rec.LedgerID)
	}

	entryQuery := `
		INSERT INTO entries (ledger_id, type, amount, note, author, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id
	`

	note := fmt.Sprintf("%s payment %s", rec.Source, key)

	var entryID uuid.UUID
	if err := dbTx.QueryRowContext(ctx, entryQuery,
		rec.LedgerID,
		ledger.TypeIncome,
		rec.Amount,
		note,
		rec.Author,
	).Scan(&entryID); err != nil {
		return uuid.Nil, fmt.Errorf("inserting payment entry: %w", err)
	}

	linkQuery := `
		UPDATE payments
		SET linked_entry_id = $1, updated_at = NOW()
		WHERE idempotency_key = $2
	`
	if _, err := dbTx.ExecContext(ctx, linkQuery, entryID, key); err != nil {
		return uuid.Nil, fmt.Errorf("linking entry to payment: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("committing posting: %w", err)
	}

	return entryID, nil
}

func (s *Store) classifyLedgerFailure(ctx context.Context, ledgerID uuid.UUID) error {
	var closed bool

	err := s.db.QueryRowContext(ctx,
		`SELECT closing_amount IS NOT NULL FROM ledgers WHERE id = $1`, ledgerID,
	).Scan(&closed)
	if err != nil {
		if err == sql.ErrNoRows {
			return ledger.ErrNotFound
		}

		return fmt.Errorf("checking ledger state: %w", err)
	}

	if closed {
		return ledger.ErrClosed
	}

	return ledger.ErrWriteConflict
}

func (s *Store) ListUnlinked(ctx context.Context, limit int) ([]*payment.Record, error) {
	query := `SELECT ` + selectRecordColumns + `
		FROM payments p
		WHERE p.status = $1 AND p.linked_entry_id IS NULL
		ORDER BY p.created_at ASC
		LIMIT $2`

	return s.queryRecords(ctx, query, payment.StatusApproved, limit)
}

func (s *Store) ListRecordsInRange(ctx context.Context, restaurantID string, filter payment.RangeFilter) ([]*payment.Record, error) {
	query := `SELECT ` + selectRecordColumns + ` FROM payments p WHERE p.restaurant_id = $1`

	args := []any{restaurantID}

	argIdx := 2

	if filter.From != nil {
		query += fmt.Sprintf(" AND p.created_at >= $%d", argIdx)

		args = append(args, *filter.From)
		argIdx++
	}

	if filter.To != nil {
		query += fmt.Sprintf(" AND p.created_at < $%d", argIdx)

		args = append(args, *filter.To)
		argIdx++
	}

	query += " ORDER BY p.created_at ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
		argIdx++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)

		args = append(args, filter.Offset)
	}

	return s.queryRecords(ctx, query, args...)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*payment.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payment records: %w", err)
	}
	defer rows.Close()

	var records []*payment.Record

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment record: %w", err)
		}

		records = append(records, r)
	}

	return records, rows.Err()
}
