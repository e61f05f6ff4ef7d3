package repository

import (
	"context"
	"database/sql"
	"time"

	"ai-testbench/core/models"

	"github.com/google/uuid"
)

// MetricRepository handles database operations for test metrics
type MetricRepository struct {
	db *DB
}

// NewMetricRepository creates a new metric repository
func NewMetricRepository(db *DB) *MetricRepository {
	return &MetricRepository{db: db}
}

// CreateMetric creates a new aggregated metric. Trend and threshold fields
// are written afterwards by UpdateAnalysis.
func (r *MetricRepository) CreateMetric(ctx context.Context, m *models.TestMetric) error {
	query := `
		INSERT INTO test_metrics (
			id, test_run_id, user_id, metric_type, metric_name, ai_job,
			metric_value, metric_unit, aggregation_type, time_period,
			baseline_value, threshold_min, threshold_max, trend_direction,
			metadata, collected_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	metricID := uuid.New()
	if m.ID != "" {
		var err error
		metricID, err = uuid.Parse(m.ID)
		if err != nil {
			return err
		}
	}

	if m.CollectedAt.IsZero() {
		m.CollectedAt = time.Now()
	}
	if m.TrendDirection == "" {
		m.TrendDirection = models.TrendUnknown
	}

	metaJSON, err := marshalJSON(m.Metadata)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, query,
		metricID,
		m.TestRunID,
		m.UserID,
		m.MetricType,
		m.MetricName,
		m.AIJob,
		m.MetricValue,
		m.MetricUnit,
		m.AggregationType,
		m.TimePeriod,
		m.BaselineValue,
		m.ThresholdMin,
		m.ThresholdMax,
		m.TrendDirection,
		metaJSON,
		m.CollectedAt,
		now,
		now,
	)
	if err != nil {
		return err
	}

	m.ID = metricID.String()
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// UpdateAnalysis writes the trend and threshold fields computed by the
// analyzer. This is the single post-creation write a metric receives.
func (r *MetricRepository) UpdateAnalysis(ctx context.Context, m *models.TestMetric) error {
	query := `
		UPDATE test_metrics
		SET comparison_value = $1,
			percentage_change = $2,
			trend_direction = $3,
			is_within_threshold = $4,
			updated_at = NOW()
		WHERE id = $5
	`

	_, err := r.db.ExecContext(ctx, query,
		m.ComparisonValue,
		m.PercentageChange,
		m.TrendDirection,
		m.IsWithinThreshold,
		m.ID,
	)
	return err
}

// LatestBefore returns the most recent metric for the key collected strictly
// before the given time, or nil when no prior metric exists
func (r *MetricRepository) LatestBefore(ctx context.Context, key models.MetricKey, before time.Time) (*models.TestMetric, error) {
	query := selectMetricColumns + `
		WHERE metric_name = $1 AND ai_job = $2 AND time_period = $3 AND user_id = $4
			AND collected_at < $5
		ORDER BY collected_at DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, key.MetricName, key.AIJob, key.TimePeriod, key.UserID, before)
	m, err := scanMetric(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListByRun returns all metrics belonging to a run
func (r *MetricRepository) ListByRun(ctx context.Context, runID string) ([]*models.TestMetric, error) {
	query := selectMetricColumns + ` WHERE test_run_id = $1 ORDER BY metric_name, ai_job`
	return r.queryMetrics(ctx, query, runID)
}

// Series returns the trend series for a metric key, newest first
func (r *MetricRepository) Series(ctx context.Context, key models.MetricKey, limit int) ([]*models.TestMetric, error) {
	query := selectMetricColumns + `
		WHERE metric_name = $1 AND ai_job = $2 AND time_period = $3 AND user_id = $4
		ORDER BY collected_at DESC
		LIMIT $5
	`
	return r.queryMetrics(ctx, query, key.MetricName, key.AIJob, key.TimePeriod, key.UserID, limit)
}

// TestPeriodMetricsInWindow returns test-period metrics collected inside
// [from, to). Input to the periodic rollups.
func (r *MetricRepository) TestPeriodMetricsInWindow(ctx context.Context, from, to time.Time) ([]*models.TestMetric, error) {
	query := selectMetricColumns + `
		WHERE time_period = $1 AND collected_at >= $2 AND collected_at < $3
		ORDER BY collected_at
	`
	return r.queryMetrics(ctx, query, models.PeriodTest, from, to)
}

func (r *MetricRepository) queryMetrics(ctx context.Context, query string, args ...interface{}) ([]*models.TestMetric, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*models.TestMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}

const selectMetricColumns = `
	SELECT id, test_run_id, user_id, metric_type, metric_name, ai_job,
		metric_value, metric_unit, aggregation_type, time_period,
		baseline_value, threshold_min, threshold_max, is_within_threshold,
		trend_direction, comparison_value, percentage_change, metadata,
		collected_at, created_at, updated_at
	FROM test_metrics`

func scanMetric(row rowScanner) (*models.TestMetric, error) {
	var m models.TestMetric
	var metricUnit sql.NullString
	var baseline, thresholdMin, thresholdMax sql.NullFloat64
	var withinThreshold sql.NullBool
	var comparison, pctChange sql.NullFloat64
	var metadata []byte

	err := row.Scan(
		&m.ID,
		&m.TestRunID,
		&m.UserID,
		&m.MetricType,
		&m.MetricName,
		&m.AIJob,
		&m.MetricValue,
		&metricUnit,
		&m.AggregationType,
		&m.TimePeriod,
		&baseline,
		&thresholdMin,
		&thresholdMax,
		&withinThreshold,
		&m.TrendDirection,
		&comparison,
		&pctChange,
		&metadata,
		&m.CollectedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metricUnit.Valid {
		m.MetricUnit = metricUnit.String
	}
	if baseline.Valid {
		m.BaselineValue = &baseline.Float64
	}
	if thresholdMin.Valid {
		m.ThresholdMin = &thresholdMin.Float64
	}
	if thresholdMax.Valid {
		m.ThresholdMax = &thresholdMax.Float64
	}
	if withinThreshold.Valid {
		m.IsWithinThreshold = &withinThreshold.Bool
	}
	if comparison.Valid {
		m.ComparisonValue = &comparison.Float64
	}
	if pctChange.Valid {
		m.PercentageChange = &pctChange.Float64
	}
	if len(metadata) > 0 {
		if err := unmarshalJSON(metadata, &m.Metadata); err != nil {
			return nil, err
		}
	}

	return &m, nil
}
