package sim

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"ai-testbench/core/executor"
	"ai-testbench/core/models"
)

// Engine is a deterministic simulated analysis engine for local runs and
// tests. The measurement for a given (job, source) pair is stable across
// invocations, which keeps trend comparisons reproducible.
type Engine struct {
	// Latency is the simulated engine call duration. Zero means no delay.
	Latency time.Duration
	// FailSources maps test sources to the error Run reports for them
	FailSources map[string]error
	// NotApplicableSources lists sources the engine refuses as not applicable
	NotApplicableSources map[string]bool
}

// NewEngine creates a simulated engine with no failures configured
func NewEngine(latency time.Duration) *Engine {
	return &Engine{
		Latency:              latency,
		FailSources:          make(map[string]error),
		NotApplicableSources: make(map[string]bool),
	}
}

var simulatedJobs = map[string]bool{
	"transcription":      true,
	"object_detection":   true,
	"sentiment_analysis": true,
	"summarization":      true,
	"url_analysis":       true,
}

// Recognizes reports whether the job is in the simulated catalog
func (e *Engine) Recognizes(aiJob string) bool {
	return simulatedJobs[aiJob]
}

// Run produces a deterministic measurement derived from the job and source
func (e *Engine) Run(ctx context.Context, aiJob, source string) (*models.Measurement, error) {
	if e.Latency > 0 {
		select {
		case <-time.After(e.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err, ok := e.FailSources[source]; ok {
		return nil, err
	}
	if e.NotApplicableSources[source] {
		return nil, executor.ErrNotApplicable
	}
	if !simulatedJobs[aiJob] {
		return nil, fmt.Errorf("unrecognized ai_job %q", aiJob)
	}

	seed := hashSeed(aiJob, source)
	confidence := 0.70 + float64(seed%30)/100 // 0.70 - 0.99

	return &models.Measurement{
		AIOutput: map[string]interface{}{
			"job":    aiJob,
			"source": source,
			"text":   fmt.Sprintf("simulated %s output for %s", aiJob, source),
		},
		ConfidenceScore: &confidence,
		DurationMs:      int64(50 + seed%450),
		TokensUsed:      int(200 + seed%1800),
		APICallsMade:    1,
		EstimatedCost:   float64(200+seed%1800) / 1000 * 0.0006,
		MemoryUsageMB:   float64(32 + seed%96),
	}, nil
}

func hashSeed(aiJob, source string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(aiJob))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return h.Sum64()
}
