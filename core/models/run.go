package models

import "time"

// TestRun represents a named batch of test cases
type TestRun struct {
	ID          string
	UserID      string
	Name        string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Finalized reports whether the run has been completed and is immutable
func (r *TestRun) Finalized() bool {
	return r.CompletedAt != nil
}

// RunStatus is the derived run-level status. It is never stored; it is
// computed from the run's results on demand.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
	RunStatusPartial RunStatus = "partial"
)

// DeriveRunStatus computes the run-level status from its results:
// failed if any result failed, passed if every terminal result passed,
// partial for a mix of passed/skipped with no failures. A run with
// non-terminal results is still running.
func DeriveRunStatus(results []*TestResult) RunStatus {
	if len(results) == 0 {
		return RunStatusPassed
	}

	anyFailed := false
	anySkipped := false
	for _, r := range results {
		if !r.Status.Terminal() {
			return RunStatusRunning
		}
		switch r.Status {
		case ResultStatusFailed:
			anyFailed = true
		case ResultStatusSkipped:
			anySkipped = true
		}
	}

	if anyFailed {
		return RunStatusFailed
	}
	if anySkipped {
		return RunStatusPartial
	}
	return RunStatusPassed
}
