package scheduler

import (
	"context"
	"fmt"
	"time"

	"ai-testbench/core/aggregator"
	"ai-testbench/core/analyzer"
	"ai-testbench/core/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RollupSource reads the test-period metrics that feed a rollup and
// persists the rolled-up rows
type RollupSource interface {
	TestPeriodMetricsInWindow(ctx context.Context, from, to time.Time) ([]*models.TestMetric, error)
	CreateMetric(ctx context.Context, m *models.TestMetric) error
}

// RollupScheduler periodically reduces test-period metrics into daily,
// weekly and monthly metrics so trend series exist at every declared
// time_period. Each rollup row goes through the trend analyzer like any
// freshly aggregated metric.
type RollupScheduler struct {
	source   RollupSource
	analyzer *analyzer.Analyzer
	cron     *cron.Cron
	logger   zerolog.Logger
}

// NewRollupScheduler creates a new rollup scheduler
func NewRollupScheduler(source RollupSource, an *analyzer.Analyzer, logger zerolog.Logger) *RollupScheduler {
	return &RollupScheduler{
		source:   source,
		analyzer: an,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "rollup_scheduler").Logger(),
	}
}

// Start registers the rollup entries and starts the cron loop
func (s *RollupScheduler) Start(ctx context.Context) error {
	schedules := map[models.TimePeriod]string{
		models.PeriodDaily:   "5 0 * * *",  // shortly past midnight
		models.PeriodWeekly:  "15 0 * * 1", // Monday
		models.PeriodMonthly: "30 0 1 * *", // first of the month
	}

	for period, schedule := range schedules {
		period := period
		if _, err := s.cron.AddFunc(schedule, func() {
			if err := s.Rollup(ctx, period, time.Now()); err != nil {
				s.logger.Error().Err(err).Str("period", string(period)).Msg("rollup failed")
			}
		}); err != nil {
			return fmt.Errorf("failed to add %s rollup: %w", period, err)
		}
	}

	s.cron.Start()
	s.logger.Info().Msg("rollup scheduler started")
	return nil
}

// Stop stops the cron loop and waits for in-flight rollups
func (s *RollupScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Rollup reduces the test-period metrics collected in the period's window
// ending at now into one metric per series, reusing each series' own
// aggregation operator, then runs trend analysis on the new rows.
func (s *RollupScheduler) Rollup(ctx context.Context, period models.TimePeriod, now time.Time) error {
	from, to, err := windowFor(period, now)
	if err != nil {
		return err
	}

	inputs, err := s.source.TestPeriodMetricsInWindow(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to load rollup inputs: %w", err)
	}
	if len(inputs) == 0 {
		return nil
	}

	type series struct {
		template *models.TestMetric
		values   []float64
	}
	grouped := make(map[models.MetricKey]*series)
	for _, m := range inputs {
		key := m.Key()
		key.TimePeriod = period
		if grouped[key] == nil {
			grouped[key] = &series{template: m}
		}
		grouped[key].values = append(grouped[key].values, m.MetricValue)
	}

	for key, ser := range grouped {
		rollup := &models.TestMetric{
			TestRunID:       ser.template.TestRunID,
			UserID:          key.UserID,
			MetricType:      ser.template.MetricType,
			MetricName:      key.MetricName,
			AIJob:           key.AIJob,
			MetricValue:     aggregator.Reduce(ser.values, ser.template.AggregationType),
			MetricUnit:      ser.template.MetricUnit,
			AggregationType: ser.template.AggregationType,
			TimePeriod:      period,
			BaselineValue:   ser.template.BaselineValue,
			ThresholdMin:    ser.template.ThresholdMin,
			ThresholdMax:    ser.template.ThresholdMax,
			TrendDirection:  models.TrendUnknown,
			CollectedAt:     to,
		}

		if err := s.source.CreateMetric(ctx, rollup); err != nil {
			return fmt.Errorf("failed to create %s rollup for %s: %w", period, key.MetricName, err)
		}
		if err := s.analyzer.Analyze(ctx, rollup); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("period", string(period)).
		Int("series", len(grouped)).
		Time("from", from).
		Time("to", to).
		Msg("rollup completed")

	return nil
}

// windowFor returns the [from, to) input window for a rollup ending at now
func windowFor(period models.TimePeriod, now time.Time) (time.Time, time.Time, error) {
	switch period {
	case models.PeriodDaily:
		return now.AddDate(0, 0, -1), now, nil
	case models.PeriodWeekly:
		return now.AddDate(0, 0, -7), now, nil
	case models.PeriodMonthly:
		return now.AddDate(0, -1, 0), now, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("period %q has no rollup window", period)
}
