package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tavernapos/cashcore/internal/ledger"
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

const selectLedgerColumns = `
	l.id, l.restaurant_id, l.kind, l.period, l.opening_amount, l.closing_amount,
	l.version, l.opened_at, l.updated_at
`

func scanLedger(s scanner) (*ledger.Ledger, error) {
	var l ledger.Ledger

	var kind string

	var closing decimal.NullDecimal

	if err := s.Scan(
		&l.ID, &l.RestaurantID, &kind, &l.Period, &l.OpeningAmount, &closing,
		&l.Version, &l.OpenedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}

	l.Kind = ledger.Kind(kind)

	if closing.Valid {
		l.ClosingAmount = &closing.Decimal
	}

	return &l, nil
}

const selectEntryColumns = `
	e.id, e.ledger_id, e.type, e.amount, e.note, e.author, e.created_at
`

func scanEntry(s scanner) (*ledger.Entry, error) {
	var e ledger.Entry

	var typeStr string

	if err := s.Scan(
		&e.ID, &e.LedgerID, &typeStr, &e.Amount, &e.Note, &e.Author, &e.CreatedAt,
	); err != nil {
		return nil, err
	}

	e.Type = ledger.EntryType(typeStr)

	return &e, nil
}

func (s *Store) CreateLedger(ctx context.Context, l *ledger.Ledger) error {
	query := `
		INSERT INTO ledgers (restaurant_id, kind, period, opening_amount, version, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
		RETURNING id, version, opened_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		l.RestaurantID,
		l.Kind,
		l.Period,
		l.OpeningAmount,
	).Scan(&l.ID, &l.Version, &l.OpenedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating ledger: %w", err)
	}

	return nil
}

func (s *Store) GetLedger(ctx context.Context, id uuid.UUID) (*ledger.Ledger, error) {
	query := `SELECT ` + selectLedgerColumns + ` FROM ledgers l WHERE l.id = $1`

	l, err := scanLedger(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrNotFound
		}

		return nil, fmt.Errorf("getting ledger: %w", err)
	}

	return l, nil
}

// AppendEntry inserts the entry and bumps the ledger version in one
// transaction. The version bump is conditional on the version the service
// read, so two simultaneous appends cannot silently overwrite one another:
// the loser sees zero updated rows and gets ErrWriteConflict back.
func (s *Store) AppendEntry(ctx context.Context, ledgerID uuid.UUID, version int64, e *ledger.Entry) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append tx: %w", err)
	}
	defer dbTx.Rollback()

	bumpQuery := `
		UPDATE ledgers
		SET version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND closing_amount IS NULL
	`

	res, err := dbTx.ExecContext(ctx, bumpQuery, ledgerID, version)
	if err != nil {
		return fmt.Errorf("bumping ledger version: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}

	if rows == 0 {
		return s.classifyAppendFailure(ctx, ledgerID)
	}

	insertQuery := `
		INSERT INTO entries (ledger_id, type, amount, note, author, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`

	err = dbTx.QueryRowContext(ctx, insertQuery,
		e.LedgerID,
		e.Type,
		e.Amount,
		e.Note,
		e.Author,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	return nil
}

// classifyAppendFailure distinguishes why the conditional version bump
// matched no row: missing ledger, closed ledger, or a concurrent writer.
func (s *Store) classifyAppendFailure(ctx context.Context, ledgerID uuid.UUID) error {
	l, err := s.GetLedger(ctx, ledgerID)
	if err != nil {
		return err
	}

	if l.Closed() {
		return ledger.ErrClosed
	}

	return ledger.ErrWriteConflict
}

func (s *Store) ListEntries(ctx context.Context, ledgerID uuid.UUID, since *time.Time) ([]*ledger.Entry, error) {
	query := `SELECT ` + selectEntryColumns + ` FROM entries e WHERE e.ledger_id = $1`

	args := []any{ledgerID}

	if since != nil {
		query += " AND e.created_at >= $2"

		args = append(args, *since)
	}

	query += " ORDER BY e.created_at ASC, e.id ASC"

	return s.queryEntries(ctx, query, args...)
}

func (s *Store) ListEntriesInRange(ctx context.Context, ledgerID uuid.UUID, filter ledger.RangeFilter) ([]*ledger.Entry, error) {
	query := `SELECT ` + selectEntryColumns + ` FROM entries e WHERE e.ledger_id = $1`

	args := []any{ledgerID}

	argIdx := 2

	if filter.From != nil {
		query += fmt.Sprintf(" AND e.created_at >= $%d", argIdx)

		args = append(args, *filter.From)
		argIdx++
	}

	if filter.To != nil {
		query += fmt.Sprintf(" AND e.created_at < $%d", argIdx)

		args = append(args, *filter.To)
		argIdx++
	}

	query += " ORDER BY e.created_at ASC, e.id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
		argIdx++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)

		args = append(args, filter.Offset)
	}

	return s.queryEntries(ctx, query, args...)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]*ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (s *Store) SumEntries(ctx context.Context, ledgerID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	query := `
		SELECT e.type, COALESCE(SUM(e.amount), 0)
		FROM entries e
		WHERE e.ledger_id = $1
		GROUP BY e.type
	`

	rows, err := s.db.QueryContext(ctx, query, ledgerID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("summing entries: %w", err)
	}
	defer rows.Close()

	incomes := decimal.Zero
	withdrawals := decimal.Zero

	for rows.Next() {
		var typeStr string

		var total decimal.Decimal

		if err := rows.Scan(&typeStr, &total); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("scanning entry sum: %w", err)
		}

		switch ledger.EntryType(typeStr) {
		case ledger.TypeIncome:
			incomes = total
		case ledger.TypeWithdrawal:
			withdrawals = total
		}
	}

	return incomes, withdrawals, rows.Err()
}

// CloseLedger stores the declared closing amount, conditional on the ledger
// still being open. Losing the condition on an already-closed ledger is
// reported as ErrClosed so the service can return the original close result.
func (s *Store) CloseLedger(ctx context.Context, ledgerID uuid.UUID, declared decimal.Decimal) error {
	query := `
		UPDATE ledgers
		SET closing_amount = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND closing_amount IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, declared, ledgerID)
	if err != nil {
		return fmt.Errorf("closing ledger: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}

	if rows == 0 {
		l, err := s.GetLedger(ctx, ledgerID)
		if err != nil {
			return err
		}

		if l.Closed() {
			return ledger.ErrClosed
		}

		return ledger.ErrWriteConflict
	}

	return nil
}
