package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; each statement is idempotent so Apply is
// safe to run on every startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS feeds (
		id                    TEXT PRIMARY KEY,
		seq                   BIGSERIAL,
		decimals              SMALLINT NOT NULL,
		description           TEXT NOT NULL DEFAULT '',
		enabled               BOOLEAN NOT NULL DEFAULT TRUE,
		total_updates         BIGINT NOT NULL DEFAULT 0,
		last_update_block     BIGINT NOT NULL DEFAULT 0,
		last_update_timestamp BIGINT NOT NULL DEFAULT 0,
		latest_round_id       NUMERIC,
		latest_answer         NUMERIC,
		latest_started_at     BIGINT,
		latest_updated_at     BIGINT,
		latest_answered_in    NUMERIC,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS feed_rounds (
		row_id            UUID PRIMARY KEY,
		feed_id           TEXT NOT NULL REFERENCES feeds (id),
		round_id          NUMERIC NOT NULL,
		answer            NUMERIC NOT NULL,
		started_at        BIGINT NOT NULL,
		updated_at        BIGINT NOT NULL,
		answered_in_round NUMERIC NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (feed_id, round_id)
	)`,
	`CREATE INDEX IF NOT EXISTS feed_rounds_feed_idx ON feed_rounds (feed_id)`,
	`CREATE TABLE IF NOT EXISTS registry_globals (
		id               SMALLINT PRIMARY KEY CHECK (id = 1),
		total_updates    BIGINT NOT NULL DEFAULT 0,
		treasury_balance BIGINT NOT NULL DEFAULT 0
	)`,
	`INSERT INTO registry_globals (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
}

// Apply runs all migrations against the database.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
