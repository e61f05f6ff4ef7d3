package recorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"ai-testbench/core/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with the same guarded-update semantics as
// the SQL repository
type memStore struct {
	mu      sync.Mutex
	results map[string]*models.TestResult
}

func newMemStore() *memStore {
	return &memStore{results: make(map[string]*models.TestResult)}
}

func (s *memStore) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = &models.TestResult{ID: id, Status: models.ResultStatusPending}
}

func (s *memStore) GetResult(_ context.Context, id string) (*models.TestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *s.results[id]
	return &r, nil
}

func (s *memStore) MarkRunning(_ context.Context, id string, startedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[id]
	if r.Status != models.ResultStatusPending {
		return false, nil
	}
	r.Status = models.ResultStatusRunning
	r.StartedAt = &startedAt
	return true, nil
}

func (s *memStore) Complete(_ context.Context, id string, c models.ResultCompletion, from []models.ResultStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[id]

	matched := false
	for _, f := range from {
		if r.Status == f {
			matched = true
		}
	}
	if !matched {
		return false, nil
	}

	r.Status = c.Status
	r.PassFailReason = c.Reason
	r.CompletedAt = &c.CompletedAt
	r.DurationMs = c.DurationMs
	r.ErrorDetails = c.ErrorDetails
	if c.Measurement != nil {
		r.AIOutput = c.Measurement.AIOutput
		r.ConfidenceScore = c.Measurement.ConfidenceScore
		tokens := c.Measurement.TokensUsed
		r.TokensUsed = &tokens
		calls := c.Measurement.APICallsMade
		r.APICallsMade = &calls
		cost := c.Measurement.EstimatedCost
		r.EstimatedCost = &cost
		mem := c.Measurement.MemoryUsageMB
		r.MemoryUsageMB = &mem
	}
	return true, nil
}

func newTestRecorder(t *testing.T) (*Recorder, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewRecorder(store, zerolog.Nop()), store
}

func TestBeginTransitionsPendingToRunning(t *testing.T) {
	rec, store := newTestRecorder(t)
	store.add("r1")

	require.NoError(t, rec.Begin(context.Background(), "r1"))

	res, _ := store.GetResult(context.Background(), "r1")
	assert.Equal(t, models.ResultStatusRunning, res.Status)
	require.NotNil(t, res.StartedAt)
}

func TestBeginTwiceFails(t *testing.T) {
	rec, store := newTestRecorder(t)
	store.add("r1")

	require.NoError(t, rec.Begin(context.Background(), "r1"))

	err := rec.Begin(context.Background(), "r1")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "r1", stateErr.ResultID)
}

func TestCompletePassedCopiesMeasurement(t *testing.T) {
	rec, store := newTestRecorder(t)
	store.add("r1")
	require.NoError(t, rec.Begin(context.Background(), "r1"))

	confidence := 0.93
	m := &models.Measurement{
		AIOutput:        map[string]interface{}{"text": "hello"},
		ConfidenceScore: &confidence,
		TokensUsed:      512,
		APICallsMade:    2,
		EstimatedCost:   0.003,
		MemoryUsageMB:   48,
	}
	require.NoError(t, rec.CompletePassed(context.Background(), "r1", m))

	res, _ := store.GetResult(context.Background(), "r1")
	assert.Equal(t, models.ResultStatusPassed, res.Status)
	require.NotNil(t, res.CompletedAt)
	require.NotNil(t, res.StartedAt)
	assert.False(t, res.CompletedAt.Before(*res.StartedAt), "completed_at must not precede started_at")
	require.NotNil(t, res.DurationMs)
	assert.GreaterOrEqual(t, *res.DurationMs, int64(0))
	assert.Equal(t, 512, *res.TokensUsed)
	assert.Equal(t, 0.93, *res.ConfidenceScore)
}

func TestCompleteTwiceFailsWithInvalidState(t *testing.T) {
	rec, store := newTestRecorder(t)
	store.add("r1")
	require.NoError(t, rec.Begin(context.Background(), "r1"))
	require.NoError(t, rec.CompletePassed(context.Background(), "r1", &models.Measurement{}))

	err := rec.CompleteFailed(context.Background(), "r1", "should not happen", nil, nil)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.ResultStatusFailed, stateErr.To)

	// The first terminal write is untouched
	res, _ := store.GetResult(context.Background(), "r1")
	assert.Equal(t, models.ResultStatusPassed, res.Status)
}

func TestCompleteWithoutBeginFails(t *testing.T) {
	rec, store := newTestRecorder(t)
	store.add("r1")

	err := rec.CompletePassed(context.Background(), "r1", &models.Measurement{})
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestCompleteFailedStoresErrorDetails(t *testing.T) {
	rec, store := newTestRecorder(t)
	store.add("r1")
	require.NoError(t, rec.Begin(context.Background(), "r1"))

	details := map[string]interface{}{"error": "engine unreachable", "timeout": false}
	require.NoError(t, rec.CompleteFailed(context.Background(), "r1", "engine unreachable", nil, details))

	res, _ := store.GetResult(context.Background(), "r1")
	assert.Equal(t, models.ResultStatusFailed, res.Status)
	assert.Equal(t, "engine unreachable", res.PassFailReason)
	assert.Equal(t, details, res.ErrorDetails)
}

func TestSkipFromPending(t *testing.T) {
	rec, store := newTestRecorder(t)
	store.add("r1")

	require.NoError(t, rec.Skip(context.Background(), "r1", "unsupported ai_job"))

	res, _ := store.GetResult(context.Background(), "r1")
	assert.Equal(t, models.ResultStatusSkipped, res.Status)
	assert.Equal(t, "unsupported ai_job", res.PassFailReason)
	require.NotNil(t, res.CompletedAt)
	assert.Nil(t, res.DurationMs, "a never-started result has no duration")
}

func TestSkipFromRunning(t *testing.T) {
	rec, store := newTestRecorder(t)
	store.add("r1")
	require.NoError(t, rec.Begin(context.Background(), "r1"))

	require.NoError(t, rec.Skip(context.Background(), "r1", "not applicable"))

	res, _ := store.GetResult(context.Background(), "r1")
	assert.Equal(t, models.ResultStatusSkipped, res.Status)
	require.NotNil(t, res.DurationMs)
}

func TestSkipAfterTerminalFails(t *testing.T) {
	rec, store := newTestRecorder(t)
	store.add("r1")
	require.NoError(t, rec.Skip(context.Background(), "r1", "excluded"))

	err := rec.Skip(context.Background(), "r1", "again")
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}
