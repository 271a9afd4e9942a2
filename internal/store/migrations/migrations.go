// Package migrations creates the run-history schema.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		tunnel_url  TEXT NOT NULL DEFAULT '',
		success     INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS suites (
		run_id         TEXT NOT NULL REFERENCES runs(id),
		position       INTEGER NOT NULL,
		suite_id       TEXT NOT NULL DEFAULT '',
		commit_sha     TEXT NOT NULL DEFAULT '',
		state          TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// Run applies all migrations. Statements are idempotent, so running at every
// startup is safe.
func Run(ctx context.Context, db *sql.DB) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
