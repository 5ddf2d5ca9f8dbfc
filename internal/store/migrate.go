package store

import (
	"context"
	"fmt"
)

// The same statements run on SQLite dialects and Postgres.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS inference_outcomes (
		request_id TEXT NOT NULL DEFAULT '',
		operation TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		latency_ms BIGINT NOT NULL,
		provider TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inference_outcomes_created ON inference_outcomes(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_inference_outcomes_operation ON inference_outcomes(operation, outcome)`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}
	return nil
}
