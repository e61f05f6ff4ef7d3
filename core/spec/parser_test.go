package spec

import (
	"strings"
	"testing"

	"ai-testbench/core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSpec = `
suite:
  name: nightly-transcription
  cases:
    - ai_job: transcription
      source: https://example.com/a.mp3
      type: url_analysis
    - ai_job: sentiment_analysis
      source: uploads/review.txt
      type: file_upload
  metrics:
    - name: avg_latency
      type: performance
      ai_job: transcription
      source_field: duration_ms
      aggregation: average
      unit: ms
      period: test
      threshold_max: 5000
    - name: case_count
      type: usage
      ai_job: transcription
      aggregation: count
`

func TestParseSuiteSpec(t *testing.T) {
	suite, err := ParseSuiteSpec(validSpec)
	require.NoError(t, err)

	assert.Equal(t, "nightly-transcription", suite.Name)
	require.Len(t, suite.Cases, 2)
	assert.Equal(t, "transcription", suite.Cases[0].AIJob)
	assert.Equal(t, models.TestTypeURLAnalysis, suite.Cases[0].TestType)
	assert.Equal(t, models.TestTypeFileUpload, suite.Cases[1].TestType)

	require.Len(t, suite.Metrics, 2)
	latency := suite.Metrics[0]
	assert.Equal(t, models.MetricTypePerformance, latency.MetricType)
	assert.Equal(t, models.SourceFieldDurationMs, latency.SourceField)
	assert.Equal(t, models.AggregationAverage, latency.Aggregation)
	require.NotNil(t, latency.ThresholdMax)
	assert.Equal(t, 5000.0, *latency.ThresholdMax)
	assert.Nil(t, latency.ThresholdMin)

	count := suite.Metrics[1]
	assert.Equal(t, models.AggregationCount, count.Aggregation)
	assert.Equal(t, models.SourceField(""), count.SourceField)
}

func TestParseSuiteSpecDefaultsPeriod(t *testing.T) {
	suite, err := ParseSuiteSpec(validSpec)
	require.NoError(t, err)
	for _, m := range suite.Metrics {
		assert.Equal(t, models.PeriodTest, m.TimePeriod)
	}
}

func TestParseSuiteSpecMalformedYAML(t *testing.T) {
	_, err := ParseSuiteSpec("suite: [not: a: mapping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseSuiteSpecRequiresCases(t *testing.T) {
	_, err := ParseSuiteSpec("suite:\n  name: empty\n  cases: []\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid suite spec")
}

func TestParseSuiteSpecRejectsUnknownCaseType(t *testing.T) {
	in := `
suite:
  name: bad-type
  cases:
    - ai_job: transcription
      source: https://example.com/a.mp3
      type: teleportation
`
	_, err := ParseSuiteSpec(in)
	require.Error(t, err)
}

func TestParseSuiteSpecRejectsOverlongSource(t *testing.T) {
	in := `
suite:
  name: long-source
  cases:
    - ai_job: transcription
      source: ` + strings.Repeat("x", 501) + `
      type: url_analysis
`
	_, err := ParseSuiteSpec(in)
	require.Error(t, err)
}

func TestParseSuiteSpecAcceptsMaxLengthSource(t *testing.T) {
	in := `
suite:
  name: max-source
  cases:
    - ai_job: transcription
      source: ` + strings.Repeat("x", 500) + `
      type: url_analysis
`
	suite, err := ParseSuiteSpec(in)
	require.NoError(t, err)
	assert.Len(t, suite.Cases[0].TestSource, 500)
}

func TestParseSuiteSpecRequiresSourceFieldForNonCount(t *testing.T) {
	in := `
suite:
  name: missing-field
  cases:
    - ai_job: transcription
      source: https://example.com/a.mp3
      type: url_analysis
  metrics:
    - name: avg_latency
      type: performance
      ai_job: transcription
      aggregation: average
`
	_, err := ParseSuiteSpec(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_field is required")
}

func TestParseSuiteSpecRejectsUnknownAggregation(t *testing.T) {
	in := `
suite:
  name: bad-agg
  cases:
    - ai_job: transcription
      source: https://example.com/a.mp3
      type: url_analysis
  metrics:
    - name: avg_latency
      type: performance
      ai_job: transcription
      source_field: duration_ms
      aggregation: median
`
	_, err := ParseSuiteSpec(in)
	require.Error(t, err)
}
