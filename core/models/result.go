package models

import "time"

// TestResult represents one executed test case within a run
type TestResult struct {
	ID              string
	TestRunID       string
	UserID          string
	TestType        TestType
	TestSource      string // file path or URL, max 500 chars
	AIJob           string // e.g. "transcription", "object_detection"
	Status          ResultStatus
	PassFailReason  string
	AIOutput        map[string]interface{} // opaque payload from the analysis engine
	ErrorDetails    map[string]interface{} // present only when Status == failed
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationMs      *int64 // derived = CompletedAt - StartedAt
	MemoryUsageMB   *float64
	APICallsMade    *int
	TokensUsed      *int
	EstimatedCost   *float64
	ConfidenceScore *float64 // constrained to [0,1] when present
	Metadata        map[string]interface{}
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TestType represents how the test source is delivered to the engine
type TestType string

const (
	TestTypeFileUpload  TestType = "file_upload"
	TestTypeURLAnalysis TestType = "url_analysis"
)

// ResultStatus represents the current status of a test result
type ResultStatus string

const (
	ResultStatusPending ResultStatus = "pending"
	ResultStatusRunning ResultStatus = "running"
	ResultStatusPassed  ResultStatus = "passed"
	ResultStatusFailed  ResultStatus = "failed"
	ResultStatusSkipped ResultStatus = "skipped"
)

// Terminal reports whether the status is a terminal outcome.
// No transition leaves a terminal state.
func (s ResultStatus) Terminal() bool {
	switch s {
	case ResultStatusPassed, ResultStatusFailed, ResultStatusSkipped:
		return true
	}
	return false
}

// TestCase is a declared (ai_job, test_source, test_type) unit of validation work
type TestCase struct {
	AIJob      string
	TestSource string
	TestType   TestType
}

// Measurement is the raw output of executing one test case against the
// analysis engine. It is copied onto the TestResult by the recorder.
type Measurement struct {
	AIOutput        map[string]interface{}
	ConfidenceScore *float64
	DurationMs      int64
	TokensUsed      int
	APICallsMade    int
	EstimatedCost   float64
	MemoryUsageMB   float64
}

// ResultCompletion carries the fields written when a result reaches a
// terminal status
type ResultCompletion struct {
	Status       ResultStatus // must be terminal
	Reason       string
	CompletedAt  time.Time
	DurationMs   *int64
	Measurement  *Measurement // nil when no measurement was produced
	ErrorDetails map[string]interface{}
}

// SourceField names a numeric TestResult field usable as aggregation input
type SourceField string

const (
	SourceFieldDurationMs      SourceField = "duration_ms"
	SourceFieldMemoryUsageMB   SourceField = "memory_usage_mb"
	SourceFieldAPICallsMade    SourceField = "api_calls_made"
	SourceFieldTokensUsed      SourceField = "tokens_used"
	SourceFieldEstimatedCost   SourceField = "estimated_cost"
	SourceFieldConfidenceScore SourceField = "confidence_score"
)

// NumericValue returns the value of the named source field, or false when the
// field is null on this result.
func (r *TestResult) NumericValue(field SourceField) (float64, bool) {
	switch field {
	case SourceFieldDurationMs:
		if r.DurationMs != nil {
			return float64(*r.DurationMs), true
		}
	case SourceFieldMemoryUsageMB:
		if r.MemoryUsageMB != nil {
			return *r.MemoryUsageMB, true
		}
	case SourceFieldAPICallsMade:
		if r.APICallsMade != nil {
			return float64(*r.APICallsMade), true
		}
	case SourceFieldTokensUsed:
		if r.TokensUsed != nil {
			return float64(*r.TokensUsed), true
		}
	case SourceFieldEstimatedCost:
		if r.EstimatedCost != nil {
			return *r.EstimatedCost, true
		}
	case SourceFieldConfidenceScore:
		if r.ConfidenceScore != nil {
			return *r.ConfidenceScore, true
		}
	}
	return 0, false
}

// KnownSourceField reports whether the field names a numeric TestResult column
func KnownSourceField(field SourceField) bool {
	switch field {
	case SourceFieldDurationMs, SourceFieldMemoryUsageMB, SourceFieldAPICallsMade,
		SourceFieldTokensUsed, SourceFieldEstimatedCost, SourceFieldConfidenceScore:
		return true
	}
	return false
}
