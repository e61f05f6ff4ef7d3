package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ai-testbench/core/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ResultRepository handles database operations for test results
type ResultRepository struct {
	db *DB
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// CreateResult creates a new test result in pending status
func (r *ResultRepository) CreateResult(ctx context.Context, res *models.TestResult) error {
	query := `
		INSERT INTO test_results (
			id, test_run_id, user_id, test_type, test_source, ai_job,
			status, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	resultID := uuid.New()
	if res.ID != "" {
		var err error
		resultID, err = uuid.Parse(res.ID)
		if err != nil {
			return err
		}
	}

	res.Status = models.ResultStatusPending

	metaJSON, err := marshalJSON(res.Metadata)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx, query,
		resultID,
		res.TestRunID,
		res.UserID,
		res.TestType,
		res.TestSource,
		res.AIJob,
		res.Status,
		metaJSON,
		now,
		now,
	)
	if err != nil {
		return err
	}

	res.ID = resultID.String()
	res.CreatedAt = now
	res.UpdatedAt = now

	if err := createResultEventTx(ctx, tx, res.ID, nil, res.Status, "result_created", nil); err != nil {
		return err
	}

	return tx.Commit()
}

// GetResult retrieves a test result by ID
func (r *ResultRepository) GetResult(ctx context.Context, id string) (*models.TestResult, error) {
	query := selectResultColumns + ` WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	return scanResult(row)
}

// ListByRun returns all results belonging to a run
func (r *ResultRepository) ListByRun(ctx context.Context, runID string) ([]*models.TestResult, error) {
	query := selectResultColumns + ` WHERE test_run_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.TestResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, rows.Err()
}

// ListUnfinishedByRun returns results of a run that have not reached a
// terminal status
func (r *ResultRepository) ListUnfinishedByRun(ctx context.Context, runID string) ([]*models.TestResult, error) {
	query := selectResultColumns + ` WHERE test_run_id = $1 AND status IN ('pending', 'running') ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.TestResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, rows.Err()
}

// MarkRunning transitions a result from pending to running and sets
// started_at. Reports false when the result was not pending.
func (r *ResultRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	query := `
		UPDATE test_results
		SET status = $1, started_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, models.ResultStatusRunning, startedAt, id, models.ResultStatusPending)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	from := models.ResultStatusPending
	if err := createResultEventTx(ctx, tx, id, &from, models.ResultStatusRunning, "execution_started", nil); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// Complete transitions a result to a terminal status and persists the
// measurement fields. The update is guarded on the current status being one
// of fromStatuses; reports false when the guard did not match, so the caller
// can surface an invalid-transition error. The status row update and the
// transition event are committed in one transaction.
func (r *ResultRepository) Complete(ctx context.Context, id string, c models.ResultCompletion, fromStatuses []models.ResultStatus) (bool, error) {
	if !c.Status.Terminal() {
		return false, fmt.Errorf("completion status %q is not terminal", c.Status)
	}

	query := `
		UPDATE test_results
		SET status = $1,
			pass_fail_reason = $2,
			completed_at = $3,
			duration_ms = $4,
			ai_output = $5,
			error_details = $6,
			memory_usage_mb = $7,
			api_calls_made = $8,
			tokens_used = $9,
			estimated_cost = $10,
			confidence_score = $11,
			updated_at = NOW()
		WHERE id = $12 AND status = ANY($13)
	`

	var aiOutput, errorDetails []byte
	var memoryMB, estimatedCost, confidence *float64
	var apiCalls, tokensUsed *int
	var err error

	if c.Measurement != nil {
		aiOutput, err = marshalJSON(c.Measurement.AIOutput)
		if err != nil {
			return false, err
		}
		memoryMB = &c.Measurement.MemoryUsageMB
		estimatedCost = &c.Measurement.EstimatedCost
		apiCalls = &c.Measurement.APICallsMade
		tokensUsed = &c.Measurement.TokensUsed
		confidence = c.Measurement.ConfidenceScore
	}
	if c.ErrorDetails != nil {
		errorDetails, err = marshalJSON(c.ErrorDetails)
		if err != nil {
			return false, err
		}
	}

	from := make([]string, 0, len(fromStatuses))
	for _, s := range fromStatuses {
		from = append(from, string(s))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query,
		c.Status,
		c.Reason,
		c.CompletedAt,
		c.DurationMs,
		aiOutput,
		errorDetails,
		memoryMB,
		apiCalls,
		tokensUsed,
		estimatedCost,
		confidence,
		id,
		pq.Array(from),
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	meta := map[string]interface{}{}
	if c.ErrorDetails != nil {
		meta["error_details"] = c.ErrorDetails
	}
	if err := createResultEventTx(ctx, tx, id, nil, c.Status, c.Reason, meta); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// NumericValues returns the non-null values of one numeric source field
// across a run's results for the given ai_job
func (r *ResultRepository) NumericValues(ctx context.Context, runID, aiJob string, field models.SourceField) ([]float64, error) {
	if !models.KnownSourceField(field) {
		return nil, fmt.Errorf("unknown source field %q", field)
	}

	// field is validated against the closed SourceField set above
	query := fmt.Sprintf(`
		SELECT %s FROM test_results
		WHERE test_run_id = $1 AND ai_job = $2 AND %s IS NOT NULL
	`, field, field)

	rows, err := r.db.QueryContext(ctx, query, runID, aiJob)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return values, rows.Err()
}

// CountResults counts a run's results for the given ai_job regardless of
// field nullity
func (r *ResultRepository) CountResults(ctx context.Context, runID, aiJob string) (int, error) {
	query := `SELECT COUNT(*) FROM test_results WHERE test_run_id = $1 AND ai_job = $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, runID, aiJob).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

const selectResultColumns = `
	SELECT id, test_run_id, user_id, test_type, test_source, ai_job, status,
		pass_fail_reason, ai_output, error_details, started_at, completed_at,
		duration_ms, memory_usage_mb, api_calls_made, tokens_used,
		estimated_cost, confidence_score, metadata, created_at, updated_at
	FROM test_results`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row rowScanner) (*models.TestResult, error) {
	var res models.TestResult
	var passFailReason sql.NullString
	var aiOutput, errorDetails, metadata []byte
	var startedAt, completedAt sql.NullTime
	var durationMs sql.NullInt64
	var memoryMB, estimatedCost, confidence sql.NullFloat64
	var apiCalls, tokensUsed sql.NullInt64

	err := row.Scan(
		&res.ID,
		&res.TestRunID,
		&res.UserID,
		&res.TestType,
		&res.TestSource,
		&res.AIJob,
		&res.Status,
		&passFailReason,
		&aiOutput,
		&errorDetails,
		&startedAt,
		&completedAt,
		&durationMs,
		&memoryMB,
		&apiCalls,
		&tokensUsed,
		&estimatedCost,
		&confidence,
		&metadata,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if passFailReason.Valid {
		res.PassFailReason = passFailReason.String
	}
	if startedAt.Valid {
		res.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		res.CompletedAt = &completedAt.Time
	}
	if durationMs.Valid {
		res.DurationMs = &durationMs.Int64
	}
	if memoryMB.Valid {
		res.MemoryUsageMB = &memoryMB.Float64
	}
	if apiCalls.Valid {
		n := int(apiCalls.Int64)
		res.APICallsMade = &n
	}
	if tokensUsed.Valid {
		n := int(tokensUsed.Int64)
		res.TokensUsed = &n
	}
	if estimatedCost.Valid {
		res.EstimatedCost = &estimatedCost.Float64
	}
	if confidence.Valid {
		res.ConfidenceScore = &confidence.Float64
	}
	if len(aiOutput) > 0 {
		if err := json.Unmarshal(aiOutput, &res.AIOutput); err != nil {
			return nil, err
		}
	}
	if len(errorDetails) > 0 {
		if err := json.Unmarshal(errorDetails, &res.ErrorDetails); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &res.Metadata); err != nil {
			return nil, err
		}
	}

	return &res, nil
}

func marshalJSON(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
