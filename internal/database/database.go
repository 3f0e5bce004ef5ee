package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func New(connStr string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate creates the ledger schema if it does not exist yet. Entries have
// no update path at the SQL level either: the journal is append-only and
// corrections are new entries.
func Migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ledgers (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			restaurant_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			period TEXT NOT NULL DEFAULT '',
			opening_amount NUMERIC(12,2) NOT NULL,
			closing_amount NUMERIC(12,2),
			version BIGINT NOT NULL DEFAULT 0,
			opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledgers_restaurant ON ledgers (restaurant_id, opened_at)`,
		`CREATE TABLE IF NOT EXISTS entries (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			ledger_id UUID NOT NULL REFERENCES ledgers (id),
			type TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			note TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_ledger ON entries (ledger_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS payments (
			idempotency_key TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			ledger_id UUID NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			source TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			linked_entry_id UUID REFERENCES entries (id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_restaurant ON payments (restaurant_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_unlinked ON payments (status, created_at) WHERE linked_entry_id IS NULL`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}

	return nil
}
