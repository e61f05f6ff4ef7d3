package monitoring

import (
	"context"
	"time"

	"ai-testbench/core/models"

	"github.com/rs/zerolog"
)

// RunStore is the slice of the measurement store the monitor scans
type RunStore interface {
	ListUnfinishedBefore(ctx context.Context, cutoff time.Time) ([]*models.TestRun, error)
	FinalizeRun(ctx context.Context, id string, completedAt time.Time) (bool, error)
}

// ResultStore lists a run's non-terminal results
type ResultStore interface {
	ListUnfinishedByRun(ctx context.Context, runID string) ([]*models.TestResult, error)
}

// ResultSkipper force-skips a result that will never execute
type ResultSkipper interface {
	Skip(ctx context.Context, resultID, reason string) error
}

// RunMonitor watches for runs that outlived the run timeout without being
// finalized (orchestrator crash, lost worker) and force-finalizes them so no
// run is left permanently in running.
type RunMonitor struct {
	runs     RunStore
	results  ResultStore
	skipper  ResultSkipper
	staleAge time.Duration
	interval time.Duration
	logger   zerolog.Logger
}

// NewRunMonitor creates a run monitor. staleAge is how old an unfinished run
// must be before it is reaped, typically the run timeout plus a grace period.
func NewRunMonitor(runs RunStore, results ResultStore, skipper ResultSkipper, staleAge, interval time.Duration, logger zerolog.Logger) *RunMonitor {
	return &RunMonitor{
		runs:     runs,
		results:  results,
		skipper:  skipper,
		staleAge: staleAge,
		interval: interval,
		logger:   logger.With().Str("component", "run_monitor").Logger(),
	}
}

// Start starts the monitoring loop; it returns when ctx is cancelled
func (rm *RunMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.reapStaleRuns(ctx)
		}
	}
}

// reapStaleRuns finalizes every run whose creation predates the stale cutoff
func (rm *RunMonitor) reapStaleRuns(ctx context.Context) {
	cutoff := time.Now().Add(-rm.staleAge)

	runs, err := rm.runs.ListUnfinishedBefore(ctx, cutoff)
	if err != nil {
		rm.logger.Error().Err(err).Msg("failed to list unfinished runs")
		return
	}

	for _, run := range runs {
		rm.ReapRun(ctx, run)
	}
}

// ReapRun force-skips a run's non-terminal results and finalizes it
func (rm *RunMonitor) ReapRun(ctx context.Context, run *models.TestRun) {
	if run.Finalized() {
		return
	}

	unfinished, err := rm.results.ListUnfinishedByRun(ctx, run.ID)
	if err != nil {
		rm.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to list unfinished results")
		return
	}

	for _, res := range unfinished {
		if err := rm.skipper.Skip(ctx, res.ID, "run timeout"); err != nil {
			rm.logger.Error().Err(err).Str("result_id", res.ID).Msg("failed to skip stale result")
		}
	}

	finalized, err := rm.runs.FinalizeRun(ctx, run.ID, time.Now())
	if err != nil {
		rm.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to finalize stale run")
		return
	}
	if finalized {
		rm.logger.Warn().
			Str("run_id", run.ID).
			Int("skipped_results", len(unfinished)).
			Msg("stale run force-finalized")
	}
}
