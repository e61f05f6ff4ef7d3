package analyzer

import (
	"context"
	"testing"
	"time"

	"ai-testbench/core/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHistory holds one prior metric per key
type fakeHistory struct {
	prior   map[models.MetricKey]*models.TestMetric
	updated []*models.TestMetric
}

func (h *fakeHistory) LatestBefore(_ context.Context, key models.MetricKey, before time.Time) (*models.TestMetric, error) {
	m := h.prior[key]
	if m == nil || !m.CollectedAt.Before(before) {
		return nil, nil
	}
	return m, nil
}

func (h *fakeHistory) UpdateAnalysis(_ context.Context, m *models.TestMetric) error {
	h.updated = append(h.updated, m)
	return nil
}

func metric(value float64) *models.TestMetric {
	return &models.TestMetric{
		ID:          "m-current",
		MetricName:  "latency",
		AIJob:       "transcription",
		TimePeriod:  models.PeriodTest,
		UserID:      "user-1",
		MetricValue: value,
		CollectedAt: time.Now(),
	}
}

func withPrior(curr *models.TestMetric, prevValue float64) *fakeHistory {
	prev := *curr
	prev.ID = "m-prev"
	prev.MetricValue = prevValue
	prev.CollectedAt = curr.CollectedAt.Add(-time.Hour)
	return &fakeHistory{prior: map[models.MetricKey]*models.TestMetric{curr.Key(): &prev}}
}

func TestAnalyzeUpwardTrend(t *testing.T) {
	curr := metric(120)
	history := withPrior(curr, 100)
	an := NewAnalyzer(history, 1.0, zerolog.Nop())

	require.NoError(t, an.Analyze(context.Background(), curr))

	require.NotNil(t, curr.ComparisonValue)
	assert.Equal(t, 100.0, *curr.ComparisonValue)
	require.NotNil(t, curr.PercentageChange)
	assert.InDelta(t, 20.0, *curr.PercentageChange, 1e-9)
	assert.Equal(t, models.TrendUp, curr.TrendDirection)
	require.Len(t, history.updated, 1)
}

func TestAnalyzeDownwardTrend(t *testing.T) {
	curr := metric(80)
	an := NewAnalyzer(withPrior(curr, 100), 1.0, zerolog.Nop())

	require.NoError(t, an.Analyze(context.Background(), curr))

	assert.Equal(t, models.TrendDown, curr.TrendDirection)
	assert.InDelta(t, -20.0, *curr.PercentageChange, 1e-9)
}

func TestAnalyzeStableWithinBand(t *testing.T) {
	curr := metric(100.5)
	an := NewAnalyzer(withPrior(curr, 100), 1.0, zerolog.Nop())

	require.NoError(t, an.Analyze(context.Background(), curr))

	assert.Equal(t, models.TrendStable, curr.TrendDirection)
	require.NotNil(t, curr.PercentageChange)
	assert.InDelta(t, 0.5, *curr.PercentageChange, 1e-9)
}

func TestAnalyzeNoPriorMetric(t *testing.T) {
	curr := metric(42)
	an := NewAnalyzer(&fakeHistory{}, 1.0, zerolog.Nop())

	require.NoError(t, an.Analyze(context.Background(), curr))

	assert.Equal(t, models.TrendUnknown, curr.TrendDirection)
	assert.Nil(t, curr.ComparisonValue)
	assert.Nil(t, curr.PercentageChange)
}

func TestAnalyzeZeroPriorIsDegenerate(t *testing.T) {
	curr := metric(5)
	an := NewAnalyzer(withPrior(curr, 0), 1.0, zerolog.Nop())

	require.NoError(t, an.Analyze(context.Background(), curr))

	// Division by zero is not an error, the trend is just unknown
	assert.Equal(t, models.TrendUnknown, curr.TrendDirection)
	assert.Nil(t, curr.PercentageChange)
	require.NotNil(t, curr.ComparisonValue)
	assert.Equal(t, 0.0, *curr.ComparisonValue)
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	curr := metric(120)
	an := NewAnalyzer(withPrior(curr, 100), 1.0, zerolog.Nop())

	require.NoError(t, an.Analyze(context.Background(), curr))
	firstDirection := curr.TrendDirection
	firstChange := *curr.PercentageChange

	require.NoError(t, an.Analyze(context.Background(), curr))
	assert.Equal(t, firstDirection, curr.TrendDirection)
	assert.Equal(t, firstChange, *curr.PercentageChange)
}

func TestAnalyzeThresholds(t *testing.T) {
	min, max := 0.0, 100.0

	t.Run("outside both bounds", func(t *testing.T) {
		curr := metric(120)
		curr.ThresholdMin = &min
		curr.ThresholdMax = &max
		an := NewAnalyzer(&fakeHistory{}, 1.0, zerolog.Nop())
		require.NoError(t, an.Analyze(context.Background(), curr))
		require.NotNil(t, curr.IsWithinThreshold)
		assert.False(t, *curr.IsWithinThreshold)
	})

	t.Run("inside both bounds", func(t *testing.T) {
		curr := metric(50)
		curr.ThresholdMin = &min
		curr.ThresholdMax = &max
		an := NewAnalyzer(&fakeHistory{}, 1.0, zerolog.Nop())
		require.NoError(t, an.Analyze(context.Background(), curr))
		require.NotNil(t, curr.IsWithinThreshold)
		assert.True(t, *curr.IsWithinThreshold)
	})

	t.Run("single lower bound", func(t *testing.T) {
		lower := 10.0
		curr := metric(5)
		curr.ThresholdMin = &lower
		an := NewAnalyzer(&fakeHistory{}, 1.0, zerolog.Nop())
		require.NoError(t, an.Analyze(context.Background(), curr))
		require.NotNil(t, curr.IsWithinThreshold)
		assert.False(t, *curr.IsWithinThreshold)
	})

	t.Run("single upper bound", func(t *testing.T) {
		upper := 10.0
		curr := metric(5)
		curr.ThresholdMax = &upper
		an := NewAnalyzer(&fakeHistory{}, 1.0, zerolog.Nop())
		require.NoError(t, an.Analyze(context.Background(), curr))
		require.NotNil(t, curr.IsWithinThreshold)
		assert.True(t, *curr.IsWithinThreshold)
	})

	t.Run("no bounds means not evaluated", func(t *testing.T) {
		curr := metric(5)
		an := NewAnalyzer(&fakeHistory{}, 1.0, zerolog.Nop())
		require.NoError(t, an.Analyze(context.Background(), curr))
		assert.Nil(t, curr.IsWithinThreshold)
	})
}

func TestCompare(t *testing.T) {
	direction, pct := Compare(100, 120, 1.0)
	assert.Equal(t, models.TrendUp, direction)
	require.NotNil(t, pct)
	assert.InDelta(t, 20.0, *pct, 1e-9)

	direction, pct = Compare(0, 5, 1.0)
	assert.Equal(t, models.TrendUnknown, direction)
	assert.Nil(t, pct)

	// A change exactly on the band boundary is directional, not stable
	direction, _ = Compare(100, 101, 1.0)
	assert.Equal(t, models.TrendUp, direction)

	direction, _ = Compare(100, 100.9, 1.0)
	assert.Equal(t, models.TrendStable, direction)
}
