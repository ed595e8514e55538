// Package parquet provides data structures and functions for exporting attendrisk
// evaluation data to Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/attendrisk/attendrisk/schema"
	"github.com/parquet-go/parquet-go"
)

// EvaluationRun represents a single evaluation run with metadata.
// This struct maps to the attendrisk_evaluation_runs database table.
type EvaluationRun struct {
	// RunID is the unique identifier for this evaluation run
	RunID int64 `parquet:"run_id,snappy"`

	// RunUUID is the globally unique identifier for this run
	RunUUID string `parquet:"run_uuid,snappy"`

	// StartTime is when the evaluation began (stored as TIMESTAMP with nanosecond precision)
	StartTime time.Time `parquet:"start_time,snappy"`

	// EndTime is when the evaluation completed (nullable)
	EndTime *time.Time `parquet:"end_time,optional,snappy"`

	// RunDurationMs is the duration of the run in milliseconds (nullable)
	RunDurationMs *int32 `parquet:"run_duration_ms,optional,snappy"`

	// StudentCount is the number of students evaluated
	StudentCount int32 `parquet:"student_count,snappy"`

	// SkippedEvents is the number of malformed inputs dropped
	SkippedEvents int32 `parquet:"skipped_events,snappy"`

	// FallbackScored is the number of reports scored by the rule model after a predictor failure
	FallbackScored int32 `parquet:"fallback_scored,snappy"`

	// ConfigParams contains the JSON-encoded configuration parameters (nullable)
	ConfigParams *string `parquet:"config_params,optional,snappy"`
}

// StudentReport represents one stored student report.
// This struct maps to the attendrisk_student_reports database table.
type StudentReport struct {
	RunID             int64     `parquet:"run_id,snappy"`
	StudentID         string    `parquet:"student_id,snappy"`
	EvaluatedAt       time.Time `parquet:"evaluated_at,snappy"`
	AttendedSessions  int32     `parquet:"attended_sessions,snappy"`
	TotalSessions     int32     `parquet:"total_sessions,snappy"`
	LateCount         int32     `parquet:"late_count,snappy"`
	CurrentPercentage float64   `parquet:"current_percentage,snappy"`
	TrailingTrend     float64   `parquet:"trailing_trend,snappy"`
	RiskScore         float64   `parquet:"risk_score,snappy"`
	RiskLabel         string    `parquet:"risk_label,snappy"`
	FallbackScored    bool      `parquet:"fallback_scored,snappy"`
	TopFactor         *string   `parquet:"top_factor,optional,snappy"`
}

// ReportRow is the flat Parquet shape of a live RiskReport, used by the parquet output mode.
type ReportRow struct {
	Rank              int32   `parquet:"rank,snappy"`
	StudentID         string  `parquet:"student_id,snappy"`
	RiskScore         float64 `parquet:"risk_score,snappy"`
	RiskLabel         string  `parquet:"risk_label,snappy"`
	FallbackScored    bool    `parquet:"fallback_scored,snappy"`
	AttendedSessions  int32   `parquet:"attended_sessions,snappy"`
	TotalSessions     int32   `parquet:"total_sessions,snappy"`
	LateCount         int32   `parquet:"late_count,snappy"`
	ExcusedCount      int32   `parquet:"excused_count,snappy"`
	CurrentPercentage float64 `parquet:"current_percentage,snappy"`
	TrailingTrend     float64 `parquet:"trailing_trend,snappy"`
	Percentage        float64 `parquet:"f_percentage,snappy"`
	TrendSlope        float64 `parquet:"f_trend_slope,snappy"`
	LateRatio         float64 `parquet:"f_late_ratio,snappy"`
	SessionsRemaining float64 `parquet:"f_sessions_remaining,snappy"`
	MarginToThreshold float64 `parquet:"f_margin_to_threshold,snappy"`
	Volatility        float64 `parquet:"f_volatility,snappy"`
	SessionsNeeded    int32   `parquet:"sessions_needed,snappy"`
	AbsenceBudget     int32   `parquet:"absence_budget,snappy"`
	Recoverable       bool    `parquet:"recoverable,snappy"`
	TopFactor         *string `parquet:"top_factor,optional,snappy"`
}

// write streams rows of any struct type to w using struct schema inference.
func write[T any](w io.Writer, data []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// writeFile creates outputPath and writes rows to it.
func writeFile[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return write(file, data)
}

// WriteEvaluationRunsParquet writes a slice of EvaluationRun structs to a Parquet file.
func WriteEvaluationRunsParquet(data []EvaluationRun, outputPath string) error {
	return writeFile(data, outputPath)
}

// WriteStudentReportsParquet writes a slice of StudentReport structs to a Parquet file.
func WriteStudentReportsParquet(data []StudentReport, outputPath string) error {
	return writeFile(data, outputPath)
}

// WriteReportRows writes live report rows to w.
func WriteReportRows(w io.Writer, rows []ReportRow) error {
	return write(w, rows)
}

// ConvertEvaluationRunRecords converts schema.EvaluationRunRecord to EvaluationRun for Parquet export.
func ConvertEvaluationRunRecords(records []schema.EvaluationRunRecord) []EvaluationRun {
	result := make([]EvaluationRun, len(records))
	for i, record := range records {
		result[i] = EvaluationRun{
			RunID:          record.RunID,
			RunUUID:        record.RunUUID,
			StartTime:      record.StartTime,
			EndTime:        record.EndTime,
			RunDurationMs:  record.RunDurationMs,
			StudentCount:   record.StudentCount,
			SkippedEvents:  record.SkippedEvents,
			FallbackScored: record.FallbackScored,
			ConfigParams:   record.ConfigParams,
		}
	}
	return result
}

// ConvertStudentReportRecords converts schema.StudentReportRecord to StudentReport for Parquet export.
func ConvertStudentReportRecords(records []schema.StudentReportRecord) []StudentReport {
	result := make([]StudentReport, len(records))
	for i, record := range records {
		result[i] = StudentReport{
			RunID:             record.RunID,
			StudentID:         record.StudentID,
			EvaluatedAt:       record.EvaluatedAt,
			AttendedSessions:  record.AttendedSessions,
			TotalSessions:     record.TotalSessions,
			LateCount:         record.LateCount,
			CurrentPercentage: record.CurrentPercentage,
			TrailingTrend:     record.TrailingTrend,
			RiskScore:         record.RiskScore,
			RiskLabel:         record.RiskLabel,
			FallbackScored:    record.FallbackScored,
			TopFactor:         record.TopFactor,
		}
	}
	return result
}

// ConvertRiskReports flattens ranked reports into Parquet rows.
func ConvertRiskReports(reports []schema.EnrichedRiskReport) []ReportRow {
	rows := make([]ReportRow, len(reports))
	for i, r := range reports {
		f := r.Features
		rows[i] = ReportRow{
			Rank:              int32(r.Rank),
			StudentID:         r.StudentID,
			RiskScore:         r.RiskScore,
			RiskLabel:         string(r.RiskLabel),
			FallbackScored:    r.FallbackScored,
			AttendedSessions:  int32(r.Summary.AttendedSessions),
			TotalSessions:     int32(r.Summary.TotalSessions),
			LateCount:         int32(r.Summary.LateCount),
			ExcusedCount:      int32(r.Summary.ExcusedCount),
			CurrentPercentage: r.Summary.CurrentPercentage,
			TrailingTrend:     r.Summary.TrailingTrend,
			Percentage:        f.Get(schema.FeaturePercentage),
			TrendSlope:        f.Get(schema.FeatureTrendSlope),
			LateRatio:         f.Get(schema.FeatureLateRatio),
			SessionsRemaining: f.Get(schema.FeatureSessionsRemaining),
			MarginToThreshold: f.Get(schema.FeatureMarginToThreshold),
			Volatility:        f.Get(schema.FeatureVolatility),
			SessionsNeeded:    int32(r.Outlook.SessionsNeeded),
			AbsenceBudget:     int32(r.Outlook.AbsenceBudget),
			Recoverable:       r.Outlook.Recoverable,
			TopFactor:         schema.TopFactor(r.RiskReport),
		}
	}
	return rows
}
