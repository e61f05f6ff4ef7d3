package recorder

import (
	"context"
	"fmt"
	"time"

	"ai-testbench/core/models"

	"github.com/rs/zerolog"
)

// Store is the slice of the measurement store the recorder writes through.
// The guarded updates report false when the expected current status did not
// match, which the recorder surfaces as an InvalidStateError.
type Store interface {
	GetResult(ctx context.Context, id string) (*models.TestResult, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error)
	Complete(ctx context.Context, id string, c models.ResultCompletion, from []models.ResultStatus) (bool, error)
}

// InvalidStateError reports an illegal result state transition. This is a
// programming or integration fault and is surfaced to the caller.
type InvalidStateError struct {
	ResultID string
	To       models.ResultStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state transition for result %s: result is not in a state that allows %q", e.ResultID, e.To)
}

// Recorder drives test results through their state machine:
// pending -> running -> {passed, failed, skipped}, with skipped also
// reachable directly from pending. Results are write-once past termination.
type Recorder struct {
	store  Store
	logger zerolog.Logger
}

// NewRecorder creates a new result recorder
func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With().Str("component", "recorder").Logger(),
	}
}

// Begin transitions a result from pending to running and stamps started_at
func (r *Recorder) Begin(ctx context.Context, resultID string) error {
	ok, err := r.store.MarkRunning(ctx, resultID, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidStateError{ResultID: resultID, To: models.ResultStatusRunning}
	}
	return nil
}

// CompletePassed transitions a running result to passed and copies the
// measurement fields
func (r *Recorder) CompletePassed(ctx context.Context, resultID string, m *models.Measurement) error {
	return r.complete(ctx, resultID, models.ResultCompletion{
		Status:      models.ResultStatusPassed,
		Reason:      "validation accepted output",
		Measurement: m,
	}, []models.ResultStatus{models.ResultStatusRunning})
}

// CompleteFailed transitions a running result to failed. The measurement may
// be nil when execution itself failed; errorDetails carries the structured
// failure payload.
func (r *Recorder) CompleteFailed(ctx context.Context, resultID, reason string, m *models.Measurement, errorDetails map[string]interface{}) error {
	return r.complete(ctx, resultID, models.ResultCompletion{
		Status:       models.ResultStatusFailed,
		Reason:       reason,
		Measurement:  m,
		ErrorDetails: errorDetails,
	}, []models.ResultStatus{models.ResultStatusRunning})
}

// Skip marks a result skipped. Reachable from pending (case excluded before
// execution) and from running (collaborator reported not applicable).
func (r *Recorder) Skip(ctx context.Context, resultID, reason string) error {
	return r.complete(ctx, resultID, models.ResultCompletion{
		Status: models.ResultStatusSkipped,
		Reason: reason,
	}, []models.ResultStatus{models.ResultStatusPending, models.ResultStatusRunning})
}

func (r *Recorder) complete(ctx context.Context, resultID string, c models.ResultCompletion, from []models.ResultStatus) error {
	c.CompletedAt = time.Now()

	// duration_ms is derived from the persisted started_at
	res, err := r.store.GetResult(ctx, resultID)
	if err != nil {
		return err
	}
	if res.StartedAt != nil {
		d := c.CompletedAt.Sub(*res.StartedAt).Milliseconds()
		if d < 0 {
			d = 0
		}
		c.DurationMs = &d
	}

	ok, err := r.store.Complete(ctx, resultID, c, from)
	if err != nil {
		return err
	}
	if !ok {
		return &InvalidStateError{ResultID: resultID, To: c.Status}
	}

	r.logger.Info().
		Str("result_id", resultID).
		Str("status", string(c.Status)).
		Str("reason", c.Reason).
		Msg("result completed")

	return nil
}
