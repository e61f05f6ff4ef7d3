package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-testbench/core/models"

	"github.com/rs/zerolog"
)

// AnalysisEngine is the external collaborator that performs the actual AI
// analysis. The engine owns the job catalog; Recognizes reports whether a
// job name is supported in the current environment.
type AnalysisEngine interface {
	Run(ctx context.Context, aiJob, source string) (*models.Measurement, error)
	Recognizes(aiJob string) bool
}

// Validator is the external collaborator that decides whether an engine
// output is acceptable for the given job
type Validator interface {
	Accepts(aiJob string, output map[string]interface{}) (bool, string)
}

// ErrNotApplicable is reported by an engine when the job does not apply to
// the given source. The orchestrator records such cases as skipped rather
// than failed.
var ErrNotApplicable = errors.New("analysis not applicable")

// ExecutionError reports a failed test case execution: collaborator
// unreachable, timeout, or malformed output. It is recorded on the result
// and never aborts the run.
type ExecutionError struct {
	AIJob      string
	TestSource string
	Timeout    bool
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("execution of %s against %q timed out: %v", e.AIJob, e.TestSource, e.Err)
	}
	return fmt.Sprintf("execution of %s against %q failed: %v", e.AIJob, e.TestSource, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Executor runs one test case against the analysis engine and returns the
// raw measurement. It does not persist anything.
type Executor struct {
	engine  AnalysisEngine
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecutor creates a new test case executor. timeout bounds a single
// engine call.
func NewExecutor(engine AnalysisEngine, timeout time.Duration, logger zerolog.Logger) *Executor {
	return &Executor{
		engine:  engine,
		timeout: timeout,
		logger:  logger.With().Str("component", "executor").Logger(),
	}
}

// Execute runs one test case and returns its measurement. Failures are
// reported as *ExecutionError for the orchestrator to record.
func (e *Executor) Execute(ctx context.Context, tc models.TestCase) (*models.Measurement, error) {
	if tc.TestSource == "" {
		return nil, &ExecutionError{AIJob: tc.AIJob, Err: errors.New("empty test source")}
	}
	if !e.engine.Recognizes(tc.AIJob) {
		return nil, &ExecutionError{AIJob: tc.AIJob, TestSource: tc.TestSource, Err: fmt.Errorf("unrecognized ai_job %q", tc.AIJob)}
	}

	caseCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		caseCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	m, err := e.engine.Run(caseCtx, tc.AIJob, tc.TestSource)
	elapsed := time.Since(start)

	if errors.Is(err, ErrNotApplicable) {
		return nil, err
	}
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || caseCtx.Err() == context.DeadlineExceeded
		e.logger.Warn().
			Err(err).
			Str("ai_job", tc.AIJob).
			Str("source", tc.TestSource).
			Bool("timeout", timedOut).
			Msg("analysis engine call failed")
		return nil, &ExecutionError{AIJob: tc.AIJob, TestSource: tc.TestSource, Timeout: timedOut, Err: err}
	}
	if m == nil {
		return nil, &ExecutionError{AIJob: tc.AIJob, TestSource: tc.TestSource, Err: errors.New("engine returned no measurement")}
	}

	// Engines that do not time themselves get the wall clock of the call
	if m.DurationMs == 0 {
		m.DurationMs = elapsed.Milliseconds()
	}

	e.logger.Debug().
		Str("ai_job", tc.AIJob).
		Int64("duration_ms", m.DurationMs).
		Int("tokens_used", m.TokensUsed).
		Msg("test case executed")

	return m, nil
}

// Recognizes reports whether the underlying engine supports the job
func (e *Executor) Recognizes(aiJob string) bool {
	return e.engine.Recognizes(aiJob)
}
