package spec

import (
	"fmt"

	"ai-testbench/core/models"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// SuiteSpec represents the YAML test suite specification
type SuiteSpec struct {
	Suite SuiteSpecSuite `yaml:"suite"`
}

// SuiteSpecSuite represents the suite section of the spec
type SuiteSpecSuite struct {
	Name    string           `yaml:"name" validate:"required"`
	Cases   []SuiteSpecCase  `yaml:"cases" validate:"required,min=1,dive"`
	Metrics []SuiteSpecMetric `yaml:"metrics" validate:"dive"`
}

// SuiteSpecCase represents one declared test case
type SuiteSpecCase struct {
	AIJob  string `yaml:"ai_job" validate:"required"`
	Source string `yaml:"source" validate:"required,max=500"`
	Type   string `yaml:"type" validate:"required,oneof=file_upload url_analysis"`
}

// SuiteSpecMetric represents one declared metric definition
type SuiteSpecMetric struct {
	Name         string   `yaml:"name" validate:"required"`
	Type         string   `yaml:"type" validate:"required,oneof=performance accuracy cost usage"`
	AIJob        string   `yaml:"ai_job" validate:"required"`
	SourceField  string   `yaml:"source_field"`
	Aggregation  string   `yaml:"aggregation" validate:"required,oneof=sum average min max count"`
	Unit         string   `yaml:"unit"`
	Period       string   `yaml:"period" validate:"omitempty,oneof=test daily weekly monthly"`
	Baseline     *float64 `yaml:"baseline,omitempty"`
	ThresholdMin *float64 `yaml:"threshold_min,omitempty"`
	ThresholdMax *float64 `yaml:"threshold_max,omitempty"`
}

// Suite is the parsed, validated form of a suite spec
type Suite struct {
	Name    string
	Cases   []models.TestCase
	Metrics []models.MetricDefinition
}

var validate = validator.New()

// ParseSuiteSpec parses a YAML suite specification into test cases and
// metric definitions
func ParseSuiteSpec(specYAML string) (*Suite, error) {
	var spec SuiteSpec
	if err := yaml.Unmarshal([]byte(specYAML), &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate.Struct(&spec.Suite); err != nil {
		return nil, fmt.Errorf("invalid suite spec: %w", err)
	}

	suite := &Suite{Name: spec.Suite.Name}

	for _, c := range spec.Suite.Cases {
		suite.Cases = append(suite.Cases, models.TestCase{
			AIJob:      c.AIJob,
			TestSource: c.Source,
			TestType:   models.TestType(c.Type),
		})
	}

	for _, m := range spec.Suite.Metrics {
		def := models.MetricDefinition{
			MetricType:    models.MetricType(m.Type),
			MetricName:    m.Name,
			AIJob:         m.AIJob,
			SourceField:   models.SourceField(m.SourceField),
			Aggregation:   models.AggregationType(m.Aggregation),
			MetricUnit:    m.Unit,
			BaselineValue: m.Baseline,
			ThresholdMin:  m.ThresholdMin,
			ThresholdMax:  m.ThresholdMax,
		}

		// Run-level metrics default to the test period
		if m.Period != "" {
			def.TimePeriod = models.TimePeriod(m.Period)
		} else {
			def.TimePeriod = models.PeriodTest
		}

		// count needs no source field; everything else does
		if def.Aggregation != models.AggregationCount && m.SourceField == "" {
			return nil, fmt.Errorf("metric %q: source_field is required for aggregation %q", m.Name, m.Aggregation)
		}

		suite.Metrics = append(suite.Metrics, def)
	}

	return suite, nil
}
