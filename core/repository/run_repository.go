package repository

import (
	"context"
	"database/sql"
	"time"

	"ai-testbench/core/models"

	"github.com/google/uuid"
)

// RunRepository handles database operations for test runs
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun creates a new test run in the database
func (r *RunRepository) CreateRun(ctx context.Context, run *models.TestRun) error {
	query := `
		INSERT INTO test_runs (id, user_id, name, created_at)
		VALUES ($1, $2, $3, $4)
	`

	runID := uuid.New()
	if run.ID != "" {
		var err error
		runID, err = uuid.Parse(run.ID)
		if err != nil {
			return err
		}
	}

	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, runID, run.UserID, run.Name, now); err != nil {
		return err
	}

	run.ID = runID.String()
	run.CreatedAt = now
	return nil
}

// GetRun retrieves a test run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.TestRun, error) {
	query := `
		SELECT id, user_id, name, created_at, completed_at
		FROM test_runs
		WHERE id = $1
	`

	var run models.TestRun
	var completedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.UserID,
		&run.Name,
		&run.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}

	return &run, nil
}

// ListRuns lists runs for a user, newest first
func (r *RunRepository) ListRuns(ctx context.Context, userID string, limit int) ([]*models.TestRun, error) {
	query := `
		SELECT id, user_id, name, created_at, completed_at
		FROM test_runs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.TestRun
	for rows.Next() {
		var run models.TestRun
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.UserID, &run.Name, &run.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// FinalizeRun marks a run completed. A run is finalized at most once; the
// second call reports false.
func (r *RunRepository) FinalizeRun(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	query := `UPDATE test_runs SET completed_at = $1 WHERE id = $2 AND completed_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, completedAt, id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUnfinishedBefore returns runs created before the cutoff that were never
// finalized. Used by the stale-run monitor.
func (r *RunRepository) ListUnfinishedBefore(ctx context.Context, cutoff time.Time) ([]*models.TestRun, error) {
	query := `
		SELECT id, user_id, name, created_at, completed_at
		FROM test_runs
		WHERE completed_at IS NULL AND created_at < $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.TestRun
	for rows.Next() {
		var run models.TestRun
		var completedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.UserID, &run.Name, &run.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// DeleteRun deletes a run; results and metrics cascade
func (r *RunRepository) DeleteRun(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM test_runs WHERE id = $1`, id)
	return err
}
