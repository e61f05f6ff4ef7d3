package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-testbench/core/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine is a scriptable analysis engine
type stubEngine struct {
	jobs  map[string]bool
	delay time.Duration
	err   error
	m     *models.Measurement
}

func (e *stubEngine) Recognizes(aiJob string) bool { return e.jobs[aiJob] }

func (e *stubEngine) Run(ctx context.Context, aiJob, source string) (*models.Measurement, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.m, nil
}

var testCase = models.TestCase{
	AIJob:      "transcription",
	TestSource: "https://example.com/audio.mp3",
	TestType:   models.TestTypeURLAnalysis,
}

func TestExecuteReturnsMeasurement(t *testing.T) {
	engine := &stubEngine{
		jobs: map[string]bool{"transcription": true},
		m: &models.Measurement{
			AIOutput:   map[string]interface{}{"text": "hello"},
			TokensUsed: 128,
		},
	}
	exec := NewExecutor(engine, time.Second, zerolog.Nop())

	m, err := exec.Execute(context.Background(), testCase)
	require.NoError(t, err)
	assert.Equal(t, 128, m.TokensUsed)
	assert.GreaterOrEqual(t, m.DurationMs, int64(0), "wall clock fills in missing duration")
}

func TestExecuteEmptySource(t *testing.T) {
	engine := &stubEngine{jobs: map[string]bool{"transcription": true}}
	exec := NewExecutor(engine, time.Second, zerolog.Nop())

	_, err := exec.Execute(context.Background(), models.TestCase{AIJob: "transcription"})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.False(t, execErr.Timeout)
}

func TestExecuteUnrecognizedJob(t *testing.T) {
	engine := &stubEngine{jobs: map[string]bool{}}
	exec := NewExecutor(engine, time.Second, zerolog.Nop())

	_, err := exec.Execute(context.Background(), testCase)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Error(), "unrecognized ai_job")
}

func TestExecuteTimeout(t *testing.T) {
	engine := &stubEngine{
		jobs:  map[string]bool{"transcription": true},
		delay: 200 * time.Millisecond,
	}
	exec := NewExecutor(engine, 20*time.Millisecond, zerolog.Nop())

	_, err := exec.Execute(context.Background(), testCase)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.True(t, execErr.Timeout)
}

func TestExecuteEngineFailure(t *testing.T) {
	engine := &stubEngine{
		jobs: map[string]bool{"transcription": true},
		err:  errors.New("collaborator unreachable"),
	}
	exec := NewExecutor(engine, time.Second, zerolog.Nop())

	_, err := exec.Execute(context.Background(), testCase)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.False(t, execErr.Timeout)
	assert.ErrorContains(t, err, "collaborator unreachable")
}

func TestExecuteNotApplicablePassesThrough(t *testing.T) {
	engine := &stubEngine{
		jobs: map[string]bool{"transcription": true},
		err:  ErrNotApplicable,
	}
	exec := NewExecutor(engine, time.Second, zerolog.Nop())

	_, err := exec.Execute(context.Background(), testCase)
	require.ErrorIs(t, err, ErrNotApplicable)
	var execErr *ExecutionError
	assert.False(t, errors.As(err, &execErr), "not-applicable is not an execution failure")
}

func TestExecuteNilMeasurement(t *testing.T) {
	engine := &stubEngine{jobs: map[string]bool{"transcription": true}}
	exec := NewExecutor(engine, time.Second, zerolog.Nop())

	_, err := exec.Execute(context.Background(), testCase)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Error(), "no measurement")
}
