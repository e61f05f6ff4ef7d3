package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ai-testbench/core/analyzer"
	"ai-testbench/core/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRollupSource struct {
	inputs  []*models.TestMetric
	created []*models.TestMetric
}

func (f *fakeRollupSource) TestPeriodMetricsInWindow(_ context.Context, from, to time.Time) ([]*models.TestMetric, error) {
	var out []*models.TestMetric
	for _, m := range f.inputs {
		if !m.CollectedAt.Before(from) && m.CollectedAt.Before(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRollupSource) CreateMetric(_ context.Context, m *models.TestMetric) error {
	m.ID = fmt.Sprintf("metric-%d", len(f.created)+1)
	clone := *m
	f.created = append(f.created, &clone)
	return nil
}

// LatestBefore scans the rollups the fake has created, which is enough for
// trend analysis on successive rollup rows
func (f *fakeRollupSource) LatestBefore(_ context.Context, key models.MetricKey, before time.Time) (*models.TestMetric, error) {
	var latest *models.TestMetric
	for _, m := range f.created {
		if m.Key() != key || !m.CollectedAt.Before(before) {
			continue
		}
		if latest == nil || m.CollectedAt.After(latest.CollectedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest, nil
}

func (f *fakeRollupSource) UpdateAnalysis(_ context.Context, m *models.TestMetric) error {
	for _, stored := range f.created {
		if stored.ID == m.ID {
			*stored = *m
		}
	}
	return nil
}

func testMetric(name, job, user string, value float64, agg models.AggregationType, collectedAt time.Time) *models.TestMetric {
	return &models.TestMetric{
		TestRunID:       "run-1",
		UserID:          user,
		MetricType:      models.MetricTypePerformance,
		MetricName:      name,
		AIJob:           job,
		MetricValue:     value,
		AggregationType: agg,
		TimePeriod:      models.PeriodTest,
		TrendDirection:  models.TrendUnknown,
		CollectedAt:     collectedAt,
	}
}

func newTestScheduler(source *fakeRollupSource) *RollupScheduler {
	an := analyzer.NewAnalyzer(source, 1.0, zerolog.Nop())
	return NewRollupScheduler(source, an, zerolog.Nop())
}

func TestRollupReducesPerSeries(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)
	source := &fakeRollupSource{inputs: []*models.TestMetric{
		testMetric("avg_latency", "transcription", "u1", 100, models.AggregationAverage, now.Add(-20*time.Hour)),
		testMetric("avg_latency", "transcription", "u1", 140, models.AggregationAverage, now.Add(-10*time.Hour)),
		testMetric("total_cost", "transcription", "u1", 2.5, models.AggregationSum, now.Add(-15*time.Hour)),
		testMetric("total_cost", "transcription", "u1", 1.5, models.AggregationSum, now.Add(-5*time.Hour)),
	}}
	s := newTestScheduler(source)

	require.NoError(t, s.Rollup(context.Background(), models.PeriodDaily, now))

	require.Len(t, source.created, 2)
	byName := make(map[string]*models.TestMetric)
	for _, m := range source.created {
		byName[m.MetricName] = m
	}

	latency := byName["avg_latency"]
	require.NotNil(t, latency)
	assert.Equal(t, 120.0, latency.MetricValue, "averages of the window's test metrics")
	assert.Equal(t, models.PeriodDaily, latency.TimePeriod)
	assert.Equal(t, now, latency.CollectedAt)

	cost := byName["total_cost"]
	require.NotNil(t, cost)
	assert.Equal(t, 4.0, cost.MetricValue, "sums keep their own operator")
}

func TestRollupExcludesMetricsOutsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)
	source := &fakeRollupSource{inputs: []*models.TestMetric{
		testMetric("avg_latency", "transcription", "u1", 100, models.AggregationAverage, now.Add(-12*time.Hour)),
		testMetric("avg_latency", "transcription", "u1", 900, models.AggregationAverage, now.Add(-36*time.Hour)),
	}}
	s := newTestScheduler(source)

	require.NoError(t, s.Rollup(context.Background(), models.PeriodDaily, now))

	require.Len(t, source.created, 1)
	assert.Equal(t, 100.0, source.created[0].MetricValue)
}

func TestRollupSeparatesUsersAndJobs(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)
	source := &fakeRollupSource{inputs: []*models.TestMetric{
		testMetric("avg_latency", "transcription", "u1", 100, models.AggregationAverage, now.Add(-1*time.Hour)),
		testMetric("avg_latency", "transcription", "u2", 300, models.AggregationAverage, now.Add(-1*time.Hour)),
		testMetric("avg_latency", "summarization", "u1", 500, models.AggregationAverage, now.Add(-1*time.Hour)),
	}}
	s := newTestScheduler(source)

	require.NoError(t, s.Rollup(context.Background(), models.PeriodDaily, now))
	assert.Len(t, source.created, 3)
}

func TestRollupEmptyWindowIsNoop(t *testing.T) {
	source := &fakeRollupSource{}
	s := newTestScheduler(source)

	require.NoError(t, s.Rollup(context.Background(), models.PeriodDaily, time.Now()))
	assert.Empty(t, source.created)
}

func TestRollupAnalyzesAgainstPriorRollup(t *testing.T) {
	day1 := time.Date(2026, 3, 10, 0, 5, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	source := &fakeRollupSource{inputs: []*models.TestMetric{
		testMetric("avg_latency", "transcription", "u1", 100, models.AggregationAverage, day1.Add(-1*time.Hour)),
		testMetric("avg_latency", "transcription", "u1", 150, models.AggregationAverage, day2.Add(-1*time.Hour)),
	}}
	s := newTestScheduler(source)

	require.NoError(t, s.Rollup(context.Background(), models.PeriodDaily, day1))
	require.NoError(t, s.Rollup(context.Background(), models.PeriodDaily, day2))

	require.Len(t, source.created, 2)
	second := source.created[1]
	assert.Equal(t, models.TrendUp, second.TrendDirection)
	require.NotNil(t, second.ComparisonValue)
	assert.Equal(t, 100.0, *second.ComparisonValue)
	require.NotNil(t, second.PercentageChange)
	assert.InDelta(t, 50.0, *second.PercentageChange, 1e-9)
}

func TestRollupRejectsTestPeriod(t *testing.T) {
	s := newTestScheduler(&fakeRollupSource{})
	err := s.Rollup(context.Background(), models.PeriodTest, time.Now())
	require.Error(t, err)
}
