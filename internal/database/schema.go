package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

const migrateTimeout = 30 * time.Second

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		uid           TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		uid            TEXT PRIMARY KEY,
		email          TEXT NOT NULL,
		balance        BIGINT NOT NULL DEFAULT 0,
		status         TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'frozen')),
		negative_since TIMESTAMPTZ NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		version        BIGINT NOT NULL DEFAULT 1,
		CHECK (negative_since IS NULL OR balance < 0)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		seq           BIGSERIAL,
		id            TEXT PRIMARY KEY,
		uid           TEXT NOT NULL REFERENCES accounts(uid),
		type          TEXT NOT NULL CHECK (type IN ('deposit', 'withdraw')),
		amount        BIGINT NOT NULL CHECK (amount > 0),
		balance_after BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_uid_created_at_idx
		ON transactions (uid, created_at DESC, seq DESC)`,
}

// EnsureSchema creates the ledger tables inside a single transaction.
func EnsureSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	log.Printf("Database schema ensured (%d statements)", len(schema))
	return nil
}
