// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"time"

	"github.com/attendrisk/attendrisk/schema"
)

// HistoryManager defines the interface for managing history stores.
// This allows the history layer to be mocked for testing.
type HistoryManager interface {
	GetHistoryStore() HistoryStore
}

// HistoryStore defines the interface for tracking evaluation runs and storing reports.
type HistoryStore interface {
	// BeginRun creates a new evaluation run and returns its unique ID
	BeginRun(startTime time.Time, runUUID string, configParams map[string]any) (int64, error)

	// EndRun updates the evaluation run with completion data
	EndRun(runID int64, endTime time.Time, summary schema.BatchSummary) error

	// RecordReport stores the report of one student
	RecordReport(runID int64, evaluatedAt time.Time, report schema.RiskReport) error

	// GetStatus returns status information about the history store
	GetStatus() (schema.HistoryStatus, error)

	// GetAllRuns returns every stored evaluation run
	GetAllRuns() ([]schema.EvaluationRunRecord, error)

	// GetAllReports returns every stored student report
	GetAllReports() ([]schema.StudentReportRecord, error)

	// Close closes the underlying connection
	Close() error
}
