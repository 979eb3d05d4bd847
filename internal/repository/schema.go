package repository

import (
	"context"
)

const tableBatchRuns = "batch_runs"

// Timestamps are unix milliseconds so both backends scan them the same way.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS batch_runs (
	id TEXT PRIMARY KEY,
	cycle_id TEXT NOT NULL,
	batch_name TEXT NOT NULL,
	batch_path TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	page_count INTEGER NOT NULL DEFAULT 0,
	attempts INTEGER NOT NULL DEFAULT 1,
	output_path TEXT,
	started_at_ms BIGINT NOT NULL,
	finished_at_ms BIGINT
)`,
	`CREATE INDEX IF NOT EXISTS batch_runs_started_idx ON batch_runs (started_at_ms)`,
	`CREATE INDEX IF NOT EXISTS batch_runs_batch_idx ON batch_runs (batch_name, started_at_ms)`,
}

func ensureSchema(ctx context.Context, db *DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
