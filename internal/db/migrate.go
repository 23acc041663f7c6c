package db

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The uniqueness constraints here are load-bearing for correctness, not just
// indexing: uq_active_session_per_user serializes StartSession against itself,
// and transactions.transaction_id is the payment idempotency key.
var statements = []string{
	`CREATE SCHEMA IF NOT EXISTS billing`,

	`CREATE TABLE IF NOT EXISTS billing.users (
		id           TEXT PRIMARY KEY,
		username     VARCHAR(50) NOT NULL,
		phone_number VARCHAR(15) NOT NULL,
		pin_hash     VARCHAR(255) NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT uq_users_username UNIQUE (username),
		CONSTRAINT uq_users_phone_number UNIQUE (phone_number)
	)`,

	`CREATE TABLE IF NOT EXISTS billing.data_packages (
		id             TEXT PRIMARY KEY,
		name           VARCHAR(50) NOT NULL,
		price          NUMERIC(10,2) NOT NULL CHECK (price > 0),
		data_limit_mb  BIGINT NOT NULL CHECK (data_limit_mb > 0),
		duration_hours INTEGER NOT NULL CHECK (duration_hours > 0),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT uq_data_packages_name UNIQUE (name)
	)`,

	`CREATE TABLE IF NOT EXISTS billing.active_sessions (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL REFERENCES billing.users(id),
		package_id   TEXT NOT NULL REFERENCES billing.data_packages(id),
		data_used_mb BIGINT NOT NULL DEFAULT 0 CHECK (data_used_mb >= 0),
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		start_time   TIMESTAMPTZ NOT NULL,
		end_time     TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS uq_active_session_per_user
		ON billing.active_sessions (user_id) WHERE is_active`,

	`CREATE TABLE IF NOT EXISTS billing.data_packets (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL REFERENCES billing.active_sessions(id),
		data_used_mb BIGINT NOT NULL CHECK (data_used_mb > 0),
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_data_packets_session
		ON billing.data_packets (session_id)`,

	`CREATE TABLE IF NOT EXISTS billing.transactions (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL REFERENCES billing.users(id),
		package_id     TEXT NOT NULL REFERENCES billing.data_packages(id),
		amount         NUMERIC(10,2) NOT NULL CHECK (amount > 0),
		transaction_id VARCHAR(100) NOT NULL,
		status         VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT uq_transactions_transaction_id UNIQUE (transaction_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_transactions_status_created
		ON billing.transactions (status, created_at)`,
}

// Migrate applies the billing schema. Statements are idempotent so the
// service can run them on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	log.Printf("[db] Schema up to date")
	return nil
}
