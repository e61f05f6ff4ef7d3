package models

import "time"

// ResultEvent represents a state transition event for a test result
type ResultEvent struct {
	ID         int64
	ResultID   string
	At         time.Time
	FromStatus *ResultStatus
	ToStatus   ResultStatus
	Reason     string
	MetaJSON   map[string]interface{} // Additional metadata
}
