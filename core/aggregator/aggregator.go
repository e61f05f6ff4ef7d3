package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ai-testbench/core/models"

	"github.com/rs/zerolog"
)

// ResultSource provides the numeric inputs of one aggregation pass
type ResultSource interface {
	NumericValues(ctx context.Context, runID, aiJob string, field models.SourceField) ([]float64, error)
	CountResults(ctx context.Context, runID, aiJob string) (int, error)
}

// MetricSink persists aggregated metrics
type MetricSink interface {
	CreateMetric(ctx context.Context, m *models.TestMetric) error
}

// AggregationInputError reports a metric definition referencing an unknown
// source field. The metric key is omitted and the error surfaced as a
// warning at run finalization.
type AggregationInputError struct {
	MetricName  string
	SourceField models.SourceField
}

func (e *AggregationInputError) Error() string {
	return fmt.Sprintf("metric %q references unknown source field %q", e.MetricName, e.SourceField)
}

// Aggregator reduces a run's results into metrics, one per declared metric
// key. Distinct keys aggregate independently and in parallel; duplicate keys
// in the definitions are collapsed so a run produces each key at most once.
type Aggregator struct {
	source ResultSource
	sink   MetricSink
	logger zerolog.Logger
}

// NewAggregator creates a new metric aggregator
func NewAggregator(source ResultSource, sink MetricSink, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		source: source,
		sink:   sink,
		logger: logger.With().Str("component", "aggregator").Logger(),
	}
}

// Aggregate computes and persists one metric per definition for the run.
// Trend and threshold fields are left unset for the analyzer. The returned
// warnings are the per-key AggregationInputErrors; they never fail the pass.
func (a *Aggregator) Aggregate(ctx context.Context, run *models.TestRun, defs []models.MetricDefinition) ([]*models.TestMetric, []error) {
	collectedAt := time.Now()
	defs = dedupeKeys(run, defs)

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		metrics  []*models.TestMetric
		warnings []error
	)

	for _, def := range defs {
		wg.Add(1)
		go func(def models.MetricDefinition) {
			defer wg.Done()

			m, err := a.aggregateOne(ctx, run, def, collectedAt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings = append(warnings, err)
				return
			}
			if m != nil {
				metrics = append(metrics, m)
			}
		}(def)
	}
	wg.Wait()

	return metrics, warnings
}

func (a *Aggregator) aggregateOne(ctx context.Context, run *models.TestRun, def models.MetricDefinition, collectedAt time.Time) (*models.TestMetric, error) {
	var value float64

	if def.Aggregation == models.AggregationCount {
		// count disregards source field nullity
		n, err := a.source.CountResults(ctx, run.ID, def.AIJob)
		if err != nil {
			return nil, err
		}
		value = float64(n)
	} else {
		if !models.KnownSourceField(def.SourceField) {
			return nil, &AggregationInputError{MetricName: def.MetricName, SourceField: def.SourceField}
		}

		values, err := a.source.NumericValues(ctx, run.ID, def.AIJob, def.SourceField)
		if err != nil {
			return nil, err
		}
		if len(values) == 0 {
			// Absence, not a zero value: emitting 0 here would fake a
			// regression out of empty data.
			a.logger.Debug().
				Str("metric", def.MetricName).
				Str("ai_job", def.AIJob).
				Msg("no matching results, metric omitted")
			return nil, nil
		}

		value = Reduce(values, def.Aggregation)
	}

	metric := &models.TestMetric{
		TestRunID:       run.ID,
		UserID:          run.UserID,
		MetricType:      def.MetricType,
		MetricName:      def.MetricName,
		AIJob:           def.AIJob,
		MetricValue:     value,
		MetricUnit:      def.MetricUnit,
		AggregationType: def.Aggregation,
		TimePeriod:      def.TimePeriod,
		BaselineValue:   def.BaselineValue,
		ThresholdMin:    def.ThresholdMin,
		ThresholdMax:    def.ThresholdMax,
		TrendDirection:  models.TrendUnknown,
		CollectedAt:     collectedAt,
	}

	if err := a.sink.CreateMetric(ctx, metric); err != nil {
		return nil, err
	}

	a.logger.Info().
		Str("metric", def.MetricName).
		Str("ai_job", def.AIJob).
		Str("aggregation", string(def.Aggregation)).
		Float64("value", value).
		Msg("metric aggregated")

	return metric, nil
}

// Reduce applies the aggregation operator to a non-empty value set.
// count is handled by the caller since it does not reduce field values.
func Reduce(values []float64, agg models.AggregationType) float64 {
	switch agg {
	case models.AggregationSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case models.AggregationAverage:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case models.AggregationMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case models.AggregationMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case models.AggregationCount:
		return float64(len(values))
	}
	return 0
}

// dedupeKeys drops later definitions that repeat an earlier metric key
func dedupeKeys(run *models.TestRun, defs []models.MetricDefinition) []models.MetricDefinition {
	seen := make(map[models.MetricKey]bool, len(defs))
	out := defs[:0:0]
	for _, def := range defs {
		key := models.MetricKey{
			MetricName: def.MetricName,
			AIJob:      def.AIJob,
			TimePeriod: def.TimePeriod,
			UserID:     run.UserID,
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, def)
	}
	return out
}
