package schema

import "time"

// EvaluationRunRecord represents a row from the attendrisk_evaluation_runs table.
type EvaluationRunRecord struct {
	RunID          int64
	RunUUID        string
	StartTime      time.Time
	EndTime        *time.Time
	RunDurationMs  *int32
	StudentCount   int32
	SkippedEvents  int32
	FallbackScored int32
	ConfigParams   *string
}

// StudentReportRecord represents a row from the attendrisk_student_reports table.
type StudentReportRecord struct {
	RunID             int64
	StudentID         string
	EvaluatedAt       time.Time
	AttendedSessions  int32
	TotalSessions     int32
	LateCount         int32
	CurrentPercentage float64
	TrailingTrend     float64
	RiskScore         float64
	RiskLabel         string
	FallbackScored    bool
	TopFactor         *string
}

// HistoryStatus holds status information about the evaluation history store.
type HistoryStatus struct {
	Backend       string
	Connected     bool
	TotalRuns     int64
	LastRunID     int64
	LastRunTime   time.Time
	OldestRunTime time.Time
	TotalReports  int64
	TableSizes    map[string]int64
}
