package monitoring

import (
	"net/http"
	"time"

	"ai-testbench/core/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsExporter exposes engine-level operational metrics for Prometheus.
// These are about the engine itself (throughput, latency, outcomes); the
// aggregated TestMetric rows live in the measurement store, not here.
type MetricsExporter struct {
	runsStarted     prometheus.Counter
	runsFinalized   *prometheus.CounterVec
	runDuration     prometheus.Histogram
	resultsTotal    *prometheus.CounterVec
	caseDuration    *prometheus.HistogramVec
	metricsComputed *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsExporter creates a metrics exporter with its own registry
func NewMetricsExporter() *MetricsExporter {
	registry := prometheus.NewRegistry()

	me := &MetricsExporter{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "testbench_runs_started_total",
			Help: "Total number of test runs started",
		}),
		runsFinalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "testbench_runs_finalized_total",
				Help: "Total number of test runs finalized by derived status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "testbench_run_duration_seconds",
			Help:    "Wall clock duration of finalized runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~13m
		}),
		resultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "testbench_results_total",
				Help: "Total number of recorded test results by terminal status",
			},
			[]string{"ai_job", "status"},
		),
		caseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "testbench_case_duration_seconds",
				Help:    "Duration of individual test case executions",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~5m
			},
			[]string{"ai_job", "outcome"},
		),
		metricsComputed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "testbench_metrics_computed_total",
				Help: "Total number of aggregated metrics by aggregation type",
			},
			[]string{"aggregation"},
		),
		registry: registry,
	}

	registry.MustRegister(
		me.runsStarted,
		me.runsFinalized,
		me.runDuration,
		me.resultsTotal,
		me.caseDuration,
		me.metricsComputed,
	)

	return me
}

// Handler returns the HTTP handler serving the /metrics endpoint
func (me *MetricsExporter) Handler() http.Handler {
	return promhttp.HandlerFor(me.registry, promhttp.HandlerOpts{})
}

func (me *MetricsExporter) RunStarted() {
	me.runsStarted.Inc()
}

func (me *MetricsExporter) RunFinalized(status models.RunStatus, duration time.Duration) {
	me.runsFinalized.WithLabelValues(string(status)).Inc()
	me.runDuration.Observe(duration.Seconds())
}

func (me *MetricsExporter) ResultRecorded(aiJob string, status models.ResultStatus) {
	me.resultsTotal.WithLabelValues(aiJob, string(status)).Inc()
}

func (me *MetricsExporter) CaseExecuted(aiJob string, outcome string, elapsed time.Duration) {
	me.caseDuration.WithLabelValues(aiJob, outcome).Observe(elapsed.Seconds())
}

func (me *MetricsExporter) MetricAggregated(aggregation models.AggregationType) {
	me.metricsComputed.WithLabelValues(string(aggregation)).Inc()
}
