package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied idempotently at start-up.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
        id           UUID PRIMARY KEY,
        address      TEXT NOT NULL UNIQUE,
        display_name TEXT NOT NULL DEFAULT '',
        balance      NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
        seq                  BIGSERIAL PRIMARY KEY,
        id                   UUID NOT NULL UNIQUE,
        account_id           UUID NOT NULL REFERENCES accounts(id),
        kind                 TEXT NOT NULL,
        amount               NUMERIC(20,2) NOT NULL CHECK (amount > 0),
        counterparty_address TEXT,
        description          TEXT NOT NULL,
        created_at           TIMESTAMPTZ NOT NULL,
        balance_after        NUMERIC(20,2) NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_account_idx
        ON ledger_entries (account_id, created_at DESC, seq DESC)`,
	`CREATE TABLE IF NOT EXISTS credentials (
        account_id  UUID PRIMARY KEY REFERENCES accounts(id),
        address     TEXT NOT NULL UNIQUE,
        secret_hash BYTEA NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
    )`,
}

// EnsureSchema creates the ledger tables when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
