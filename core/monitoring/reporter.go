package monitoring

import (
	"time"

	"ai-testbench/core/models"
)

// Reporter receives engine-level operational signals. Implementations must
// be safe for concurrent use; the orchestrator reports from its workers.
type Reporter interface {
	RunStarted()
	RunFinalized(status models.RunStatus, duration time.Duration)
	ResultRecorded(aiJob string, status models.ResultStatus)
	CaseExecuted(aiJob string, outcome string, elapsed time.Duration)
	MetricAggregated(aggregation models.AggregationType)
}

// NoopReporter discards all signals
type NoopReporter struct{}

func (NoopReporter) RunStarted()                                  {}
func (NoopReporter) RunFinalized(models.RunStatus, time.Duration) {}
func (NoopReporter) ResultRecorded(string, models.ResultStatus)   {}
func (NoopReporter) CaseExecuted(string, string, time.Duration)   {}
func (NoopReporter) MetricAggregated(models.AggregationType)      {}
