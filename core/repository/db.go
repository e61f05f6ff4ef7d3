package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// DB wraps the database handle shared by all repositories
type DB struct {
	*sql.DB
}

// NewDB opens a connection to the Postgres database
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// InitSchema creates the engine tables and indices if they do not exist
func (db *DB) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS test_runs (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS test_results (
			id UUID PRIMARY KEY,
			test_run_id UUID NOT NULL REFERENCES test_runs(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			test_type TEXT NOT NULL,
			test_source VARCHAR(500) NOT NULL,
			ai_job TEXT NOT NULL,
			status TEXT NOT NULL,
			pass_fail_reason TEXT,
			ai_output JSONB,
			error_details JSONB,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			duration_ms BIGINT,
			memory_usage_mb DOUBLE PRECISION,
			api_calls_made INTEGER,
			tokens_used INTEGER,
			estimated_cost DOUBLE PRECISION,
			confidence_score DOUBLE PRECISION CHECK (confidence_score IS NULL OR (confidence_score >= 0 AND confidence_score <= 1)),
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (completed_at IS NULL OR started_at IS NULL OR completed_at >= started_at)
		)`,
		`CREATE TABLE IF NOT EXISTS test_metrics (
			id UUID PRIMARY KEY,
			test_run_id UUID NOT NULL REFERENCES test_runs(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			metric_type TEXT NOT NULL,
			metric_name TEXT NOT NULL,
			ai_job TEXT NOT NULL,
			metric_value DOUBLE PRECISION NOT NULL,
			metric_unit TEXT,
			aggregation_type TEXT NOT NULL,
			time_period TEXT NOT NULL,
			baseline_value DOUBLE PRECISION,
			threshold_min DOUBLE PRECISION,
			threshold_max DOUBLE PRECISION,
			is_within_threshold BOOLEAN,
			trend_direction TEXT NOT NULL DEFAULT 'unknown',
			comparison_value DOUBLE PRECISION,
			percentage_change DOUBLE PRECISION,
			metadata JSONB,
			collected_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS result_events (
			id BIGSERIAL PRIMARY KEY,
			result_id UUID NOT NULL REFERENCES test_results(id) ON DELETE CASCADE,
			at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			from_status TEXT,
			to_status TEXT NOT NULL,
			reason TEXT,
			meta_json JSONB
		)`,
		// Required by the trend analyzer's previous-metric point query
		`CREATE INDEX IF NOT EXISTS idx_test_metrics_series
			ON test_metrics (metric_name, ai_job, time_period, collected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_test_results_run ON test_results (test_run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_result_events_result ON result_events (result_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}
