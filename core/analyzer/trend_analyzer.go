package analyzer

import (
	"context"
	"math"
	"time"

	"ai-testbench/core/models"

	"github.com/rs/zerolog"
)

// DefaultStabilityBandPct is the tolerance below which a percentage change
// is classified stable rather than up/down.
const DefaultStabilityBandPct = 1.0

// MetricHistory is the slice of the measurement store the analyzer reads
// and writes. LatestBefore returns nil when no prior metric exists for the
// key.
type MetricHistory interface {
	LatestBefore(ctx context.Context, key models.MetricKey, before time.Time) (*models.TestMetric, error)
	UpdateAnalysis(ctx context.Context, m *models.TestMetric) error
}

// Analyzer enriches freshly aggregated metrics with trend and threshold
// fields. It holds no state between calls; the previous value is a point
// query against the store, so distinct metric keys analyze safely in
// parallel.
type Analyzer struct {
	history          MetricHistory
	stabilityBandPct float64
	logger           zerolog.Logger
}

// NewAnalyzer creates a new trend and threshold analyzer. A zero or
// negative stabilityBandPct falls back to the default band.
func NewAnalyzer(history MetricHistory, stabilityBandPct float64, logger zerolog.Logger) *Analyzer {
	if stabilityBandPct <= 0 {
		stabilityBandPct = DefaultStabilityBandPct
	}
	return &Analyzer{
		history:          history,
		stabilityBandPct: stabilityBandPct,
		logger:           logger.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze computes trend and threshold fields for the metric and persists
// them. This is the single mutation a metric receives after creation.
func (a *Analyzer) Analyze(ctx context.Context, m *models.TestMetric) error {
	prev, err := a.history.LatestBefore(ctx, m.Key(), m.CollectedAt)
	if err != nil {
		return err
	}

	if prev == nil {
		m.TrendDirection = models.TrendUnknown
		m.ComparisonValue = nil
		m.PercentageChange = nil
	} else {
		direction, pctChange := Compare(prev.MetricValue, m.MetricValue, a.stabilityBandPct)
		comparison := prev.MetricValue
		m.ComparisonValue = &comparison
		m.TrendDirection = direction
		m.PercentageChange = pctChange
	}

	m.IsWithinThreshold = EvaluateThreshold(m.MetricValue, m.ThresholdMin, m.ThresholdMax)

	if err := a.history.UpdateAnalysis(ctx, m); err != nil {
		return err
	}

	a.logger.Info().
		Str("metric", m.MetricName).
		Str("ai_job", m.AIJob).
		Str("trend", string(m.TrendDirection)).
		Msg("metric analyzed")

	return nil
}

// Compare classifies the change from prev to curr. A zero prev is a
// degenerate case, not an error: the change is undefined and the trend
// unknown. Direction carries no polarity judgement; interpreting up or down
// as good or bad is a caller concern.
func Compare(prev, curr, stabilityBandPct float64) (models.TrendDirection, *float64) {
	if prev == 0 {
		return models.TrendUnknown, nil
	}

	pct := (curr - prev) / prev * 100
	direction := models.TrendStable
	if math.Abs(pct) >= stabilityBandPct {
		if curr > prev {
			direction = models.TrendUp
		} else {
			direction = models.TrendDown
		}
	}
	return direction, &pct
}

// EvaluateThreshold checks the value against the declared bounds. With both
// bounds set the value must fall inside [min, max]; a single bound is
// checked alone; with no bounds the check is not evaluated and nil is
// returned.
func EvaluateThreshold(value float64, min, max *float64) *bool {
	if min == nil && max == nil {
		return nil
	}

	within := true
	if min != nil && value < *min {
		within = false
	}
	if max != nil && value > *max {
		within = false
	}
	return &within
}
