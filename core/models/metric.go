package models

import "time"

// TestMetric represents one aggregated measurement for a run
type TestMetric struct {
	ID                string
	TestRunID         string
	UserID            string
	MetricType        MetricType
	MetricName        string
	AIJob             string
	MetricValue       float64
	MetricUnit        string
	AggregationType   AggregationType
	TimePeriod        TimePeriod
	BaselineValue     *float64 // externally supplied target, optional
	ThresholdMin      *float64
	ThresholdMax      *float64
	IsWithinThreshold *bool // nil when no thresholds declared
	TrendDirection    TrendDirection
	ComparisonValue   *float64 // previous period's value for the same key
	PercentageChange  *float64
	Metadata          map[string]interface{}
	CollectedAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Key returns the metric key identifying this metric's trend series
func (m *TestMetric) Key() MetricKey {
	return MetricKey{
		MetricName: m.MetricName,
		AIJob:      m.AIJob,
		TimePeriod: m.TimePeriod,
		UserID:     m.UserID,
	}
}

// MetricKey identifies one trend series. UserID is the owning scope.
type MetricKey struct {
	MetricName string
	AIJob      string
	TimePeriod TimePeriod
	UserID     string
}

// MetricType classifies what a metric measures
type MetricType string

const (
	MetricTypePerformance MetricType = "performance"
	MetricTypeAccuracy    MetricType = "accuracy"
	MetricTypeCost        MetricType = "cost"
	MetricTypeUsage       MetricType = "usage"
)

// AggregationType selects the reducer applied to the source values
type AggregationType string

const (
	AggregationSum     AggregationType = "sum"
	AggregationAverage AggregationType = "average"
	AggregationMin     AggregationType = "min"
	AggregationMax     AggregationType = "max"
	AggregationCount   AggregationType = "count"
)

// TimePeriod is the window a metric is aggregated over
type TimePeriod string

const (
	PeriodTest    TimePeriod = "test"
	PeriodDaily   TimePeriod = "daily"
	PeriodWeekly  TimePeriod = "weekly"
	PeriodMonthly TimePeriod = "monthly"
)

// TrendDirection is the direction of the raw value relative to the previous
// period. It carries no polarity judgement; "up" for a cost metric means cost
// increased, "up" for an accuracy metric means accuracy increased.
type TrendDirection string

const (
	TrendUp      TrendDirection = "up"
	TrendDown    TrendDirection = "down"
	TrendStable  TrendDirection = "stable"
	TrendUnknown TrendDirection = "unknown"
)

// MetricDefinition declares one metric to aggregate for a run
type MetricDefinition struct {
	MetricType    MetricType
	MetricName    string
	AIJob         string
	SourceField   SourceField
	Aggregation   AggregationType
	TimePeriod    TimePeriod
	MetricUnit    string
	BaselineValue *float64
	ThresholdMin  *float64
	ThresholdMax  *float64
}
