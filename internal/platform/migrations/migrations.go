// Package migrations applies the database schema. Statements are idempotent
// so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS market_accounts (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'standard',
		password_hash TEXT NOT NULL,
		email         TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS market_accounts_name_idx
		ON market_accounts (lower(name))`,
	`CREATE TABLE IF NOT EXISTS market_listings (
		id             TEXT PRIMARY KEY,
		title          TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		sale_price     DOUBLE PRECISION NOT NULL,
		purchase_price DOUBLE PRECISION,
		label          TEXT,
		deadline       TIMESTAMPTZ NOT NULL,
		quantity       INTEGER NOT NULL CHECK (quantity >= 0),
		category       TEXT NOT NULL DEFAULT '',
		seller_id      TEXT NOT NULL REFERENCES market_accounts(id),
		status         TEXT NOT NULL DEFAULT 'open',
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS market_listings_seller_idx
		ON market_listings (seller_id)`,
	`CREATE INDEX IF NOT EXISTS market_listings_status_deadline_idx
		ON market_listings (status, deadline)`,
	`CREATE TABLE IF NOT EXISTS market_offers (
		id         TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL REFERENCES market_listings(id),
		buyer_id   TEXT NOT NULL REFERENCES market_accounts(id),
		price      DOUBLE PRECISION NOT NULL,
		accepted   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS market_offers_listing_idx
		ON market_offers (listing_id)`,
}

// Apply executes every migration statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
