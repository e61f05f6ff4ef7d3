package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-testbench/core/aggregator"
	"ai-testbench/core/analyzer"
	"ai-testbench/core/executor"
	"ai-testbench/core/models"
	"ai-testbench/core/monitoring"
	"ai-testbench/core/recorder"
	"ai-testbench/core/spec"

	"github.com/rs/zerolog"
)

// RunStore is the slice of the measurement store the orchestrator drives
type RunStore interface {
	CreateRun(ctx context.Context, run *models.TestRun) error
	FinalizeRun(ctx context.Context, id string, completedAt time.Time) (bool, error)
}

// ResultStore creates and lists a run's results
type ResultStore interface {
	CreateResult(ctx context.Context, res *models.TestResult) error
	ListByRun(ctx context.Context, runID string) ([]*models.TestResult, error)
	ListUnfinishedByRun(ctx context.Context, runID string) ([]*models.TestResult, error)
}

// RunReport summarizes a finalized run
type RunReport struct {
	Run      *models.TestRun
	Status   models.RunStatus
	Results  []*models.TestResult
	Metrics  []*models.TestMetric
	Warnings []string
}

// Orchestrator sequences a test run end to end: create the run and its
// pending results, dispatch test cases to the executor under a bounded
// worker pool, wait for every result to reach a terminal state, then
// aggregate and analyze metrics and finalize the run.
type Orchestrator struct {
	runs        RunStore
	results     ResultStore
	recorder    *recorder.Recorder
	executor    *executor.Executor
	aggregator  *aggregator.Aggregator
	analyzer    *analyzer.Analyzer
	validator   executor.Validator
	reporter    monitoring.Reporter
	workerLimit int
	runTimeout  time.Duration
	logger      zerolog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewOrchestrator creates a new test run orchestrator
func NewOrchestrator(
	runs RunStore,
	results ResultStore,
	rec *recorder.Recorder,
	exec *executor.Executor,
	agg *aggregator.Aggregator,
	an *analyzer.Analyzer,
	validator executor.Validator,
	reporter monitoring.Reporter,
	workerLimit int,
	runTimeout time.Duration,
	logger zerolog.Logger,
) *Orchestrator {
	if workerLimit < 1 {
		workerLimit = 1
	}
	if reporter == nil {
		reporter = monitoring.NoopReporter{}
	}
	return &Orchestrator{
		runs:        runs,
		results:     results,
		recorder:    rec,
		executor:    exec,
		aggregator:  agg,
		analyzer:    an,
		validator:   validator,
		reporter:    reporter,
		workerLimit: workerLimit,
		runTimeout:  runTimeout,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		active:      make(map[string]context.CancelFunc),
	}
}

// ExecuteRun runs a parsed suite for a user and returns the finalized run
// report. Per-case failures are isolated and recorded; only structural
// faults (storage unavailable, illegal transitions) abort the run, with the
// partial state preserved for inspection.
func (o *Orchestrator) ExecuteRun(ctx context.Context, userID string, suite *spec.Suite) (*RunReport, error) {
	run, err := o.createRun(ctx, userID, suite)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, run, suite)
}

// Launch creates the run synchronously so the caller gets its identifier,
// then executes it in the background. Used by the HTTP API.
func (o *Orchestrator) Launch(ctx context.Context, userID string, suite *spec.Suite) (*models.TestRun, error) {
	run, err := o.createRun(ctx, userID, suite)
	if err != nil {
		return nil, err
	}

	go func() {
		if _, err := o.execute(context.Background(), run, suite); err != nil {
			o.logger.Error().Err(err).Str("run_id", run.ID).Msg("background run aborted")
		}
	}()

	return run, nil
}

func (o *Orchestrator) createRun(ctx context.Context, userID string, suite *spec.Suite) (*models.TestRun, error) {
	run := &models.TestRun{UserID: userID, Name: suite.Name}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	o.reporter.RunStarted()
	return run, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *models.TestRun, suite *spec.Suite) (*RunReport, error) {
	o.logger.Info().
		Str("run_id", run.ID).
		Str("suite", suite.Name).
		Int("cases", len(suite.Cases)).
		Msg("run started")

	runCtx := ctx
	var cancel context.CancelFunc
	if o.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.runTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	o.mu.Lock()
	o.active[run.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, run.ID)
		o.mu.Unlock()
	}()

	// Every declared case gets a pending result before any dispatch
	pending := make([]*models.TestResult, 0, len(suite.Cases))
	cases := make(map[string]models.TestCase, len(suite.Cases))
	for _, tc := range suite.Cases {
		res := &models.TestResult{
			TestRunID:  run.ID,
			UserID:     run.UserID,
			TestType:   tc.TestType,
			TestSource: tc.TestSource,
			AIJob:      tc.AIJob,
		}
		if err := o.results.CreateResult(ctx, res); err != nil {
			return nil, fmt.Errorf("failed to create result: %w", err)
		}
		pending = append(pending, res)
		cases[res.ID] = tc
	}

	// Cases the current environment cannot run are excluded before execution
	dispatch := pending[:0:0]
	for _, res := range pending {
		if !o.executor.Recognizes(res.AIJob) {
			if err := o.recorder.Skip(ctx, res.ID, fmt.Sprintf("unsupported ai_job %q", res.AIJob)); err != nil {
				return nil, err
			}
			o.reporter.ResultRecorded(res.AIJob, models.ResultStatusSkipped)
			continue
		}
		dispatch = append(dispatch, res)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.workerLimit)
	errCh := make(chan error, len(dispatch))

	for _, res := range dispatch {
		wg.Add(1)
		go func(res *models.TestResult, tc models.TestCase) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				// Never dispatched: run cancelled or timed out first
				if err := o.recorder.Skip(ctx, res.ID, skipReason(runCtx)); err != nil {
					errCh <- err
				}
				o.reporter.ResultRecorded(res.AIJob, models.ResultStatusSkipped)
				return
			}

			if err := o.runCase(ctx, runCtx, res, tc); err != nil {
				errCh <- err
			}
		}(res, cases[res.ID])
	}
	wg.Wait()
	close(errCh)

	// Illegal transitions and storage faults are structural, not per-case
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}

	// Barrier: anything still non-terminal was starved past the run timeout
	leftovers, err := o.results.ListUnfinishedByRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	for _, res := range leftovers {
		if err := o.recorder.Skip(ctx, res.ID, "run timeout"); err != nil {
			return nil, err
		}
		o.reporter.ResultRecorded(res.AIJob, models.ResultStatusSkipped)
	}

	metrics, warnings := o.aggregator.Aggregate(ctx, run, suite.Metrics)
	warningTexts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		var inputErr *aggregator.AggregationInputError
		if errors.As(w, &inputErr) {
			o.logger.Warn().Err(w).Str("run_id", run.ID).Msg("metric key omitted")
			warningTexts = append(warningTexts, w.Error())
			continue
		}
		return nil, w
	}

	for _, m := range metrics {
		if err := o.analyzer.Analyze(ctx, m); err != nil {
			return nil, err
		}
		o.reporter.MetricAggregated(m.AggregationType)
	}

	completedAt := time.Now()
	if _, err := o.runs.FinalizeRun(ctx, run.ID, completedAt); err != nil {
		return nil, fmt.Errorf("failed to finalize run: %w", err)
	}
	run.CompletedAt = &completedAt

	results, err := o.results.ListByRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	status := models.DeriveRunStatus(results)
	o.reporter.RunFinalized(status, completedAt.Sub(run.CreatedAt))

	o.logger.Info().
		Str("run_id", run.ID).
		Str("status", string(status)).
		Int("results", len(results)).
		Int("metrics", len(metrics)).
		Msg("run finalized")

	return &RunReport{
		Run:      run,
		Status:   status,
		Results:  results,
		Metrics:  metrics,
		Warnings: warningTexts,
	}, nil
}

// runCase executes one dispatched test case and records its outcome.
// Execution failures are recorded on the result, never returned; only
// recording faults propagate.
func (o *Orchestrator) runCase(ctx, runCtx context.Context, res *models.TestResult, tc models.TestCase) error {
	if err := o.recorder.Begin(ctx, res.ID); err != nil {
		return err
	}

	start := time.Now()
	m, execErr := o.executor.Execute(runCtx, tc)
	elapsed := time.Since(start)

	switch {
	case execErr == nil:
		accepted, reason := o.validator.Accepts(tc.AIJob, m.AIOutput)
		if accepted {
			o.reporter.CaseExecuted(tc.AIJob, "passed", elapsed)
			o.reporter.ResultRecorded(tc.AIJob, models.ResultStatusPassed)
			return o.recorder.CompletePassed(ctx, res.ID, m)
		}
		o.reporter.CaseExecuted(tc.AIJob, "failed", elapsed)
		o.reporter.ResultRecorded(tc.AIJob, models.ResultStatusFailed)
		return o.recorder.CompleteFailed(ctx, res.ID, reason, m, nil)

	case errors.Is(execErr, executor.ErrNotApplicable):
		o.reporter.CaseExecuted(tc.AIJob, "skipped", elapsed)
		o.reporter.ResultRecorded(tc.AIJob, models.ResultStatusSkipped)
		return o.recorder.Skip(ctx, res.ID, "not applicable")

	case runCtx.Err() != nil:
		// In-flight when the run was cancelled or timed out
		o.reporter.CaseExecuted(tc.AIJob, "skipped", elapsed)
		o.reporter.ResultRecorded(tc.AIJob, models.ResultStatusSkipped)
		return o.recorder.Skip(ctx, res.ID, skipReason(runCtx))

	default:
		var execErrTyped *executor.ExecutionError
		details := map[string]interface{}{"error": execErr.Error()}
		if errors.As(execErr, &execErrTyped) {
			details["timeout"] = execErrTyped.Timeout
		}
		o.reporter.CaseExecuted(tc.AIJob, "failed", elapsed)
		o.reporter.ResultRecorded(tc.AIJob, models.ResultStatusFailed)
		return o.recorder.CompleteFailed(ctx, res.ID, execErr.Error(), nil, details)
	}
}

// Cancel stops dispatch of a run's not-yet-started cases and lets in-flight
// ones wind down to skipped. Reports whether the run was active.
func (o *Orchestrator) Cancel(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	cancel, ok := o.active[runID]
	if ok {
		cancel()
	}
	return ok
}

func skipReason(runCtx context.Context) string {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "run timeout"
	}
	return "run cancelled"
}
