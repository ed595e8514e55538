// Package schema has the models, configs and constants shared by all parts of attendrisk.
package schema

import "time"

// PresenceEvent is one canonical presence signal for a student in a session.
// Events are values and are never mutated after normalization.
type PresenceEvent struct {
	StudentID          string     `json:"student_id"`
	SessionID          string     `json:"session_id"`
	Timestamp          time.Time  `json:"timestamp"`
	Source             Source     `json:"source"`
	Confidence         float64    `json:"confidence"`
	DetectorConfidence *float64   `json:"detector_confidence,omitempty"` // vision only
	StatusHint         StatusHint `json:"status_hint,omitempty"`         // log only
}

// AttendanceRecord is the resolved status of one student in one session.
// The (StudentID, SessionID) pair is its identity.
type AttendanceRecord struct {
	StudentID    string    `json:"student_id"`
	SessionID    string    `json:"session_id"`
	SessionStart time.Time `json:"session_start"`
	Status       Status    `json:"status"`
	MinutesLate  *int      `json:"minutes_late,omitempty"`
	Source       Source    `json:"source,omitempty"` // source of the deciding event, if any
}

// Countable reports whether the record counts toward the attendance percentage.
func (r AttendanceRecord) Countable() bool {
	return r.Status != ExcusedStatus
}

// Attended reports whether the record counts as attended. Late counts as attended.
func (r AttendanceRecord) Attended() bool {
	return r.Status == PresentStatus || r.Status == LateStatus
}

// TermSummary rolls up the attendance records of one student.
// It is derived on every evaluation and never persisted by the engine.
type TermSummary struct {
	StudentID         string    `json:"student_id"`
	TotalSessions     int       `json:"total_sessions"`
	AttendedSessions  int       `json:"attended_sessions"`
	LateCount         int       `json:"late_count"`
	ExcusedCount      int       `json:"excused_count"`
	CurrentPercentage float64   `json:"current_percentage"`
	TrailingTrend     float64   `json:"trailing_trend"`
	TrendWindow       int       `json:"trend_window"`
	RecentIndicators  []float64 `json:"recent_indicators,omitempty"` // 1 attended, 0 absent; oldest first
}

// RiskFeatures is the fixed-order feature vector of one student.
// Window, requirement and plan are carried only so explanations can phrase the
// values; predictors score Values alone.
type RiskFeatures struct {
	StudentID          string                `json:"student_id"`
	Version            string                `json:"version"`
	Values             [FeatureCount]float64 `json:"values"`
	TrendWindow        int                   `json:"trend_window"`
	RequiredPercentage float64               `json:"required_percentage"`
	PlannedSessions    int                   `json:"planned_sessions"`
}

// Get returns the value of the given feature, or 0 for an unknown key.
func (f RiskFeatures) Get(key FeatureKey) float64 {
	for i, k := range FeatureOrder {
		if k == key {
			return f.Values[i]
		}
	}
	return 0
}

// Map returns the features keyed by name.
func (f RiskFeatures) Map() map[FeatureKey]float64 {
	out := make(map[FeatureKey]float64, FeatureCount)
	for i, k := range FeatureOrder {
		out[k] = f.Values[i]
	}
	return out
}

// ExplanationFactor is one feature contributing to a risk score.
type ExplanationFactor struct {
	Factor             FeatureKey `json:"factor"`
	ContributionWeight float64    `json:"contribution_weight"`
	Text               string     `json:"text"`
}

// Outlook tells how the student can still meet the requirement by term end.
type Outlook struct {
	SessionsRemaining int  `json:"sessions_remaining"`
	SessionsNeeded    int  `json:"sessions_needed"` // may exceed SessionsRemaining when unrecoverable
	AbsenceBudget     int  `json:"absence_budget"`
	Recoverable       bool `json:"recoverable"`
}

// RiskReport is the only artifact the engine returns per student.
type RiskReport struct {
	StudentID      string              `json:"student_id"`
	RiskScore      float64             `json:"risk_score"`
	RiskLabel      RiskLabel           `json:"risk_label"`
	Explanation    []ExplanationFactor `json:"explanation"`
	FallbackScored bool                `json:"fallback_scored"`
	Summary        TermSummary         `json:"summary"`
	Features       RiskFeatures        `json:"features"`
	Outlook        Outlook             `json:"outlook"`
}

// SkippedEvent records one input dropped during normalization.
type SkippedEvent struct {
	Index  int    `json:"index"`
	Source Source `json:"source"`
	Reason string `json:"reason"`
}

// StudentFailure records a student whose pipeline could not produce a report.
type StudentFailure struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// BatchSummary carries the batch-level counts attached to every evaluation.
type BatchSummary struct {
	StudentCount           int              `json:"student_count"`
	SkippedEventCount      int              `json:"skipped_event_count"`
	ProcessedSessionCount  int              `json:"processed_session_count"` // student-session records produced
	FilteredDetectionCount int              `json:"filtered_detection_count"`
	FallbackScoredCount    int              `json:"fallback_scored_count"`
	UnevaluatedCount       int              `json:"unevaluated_count"`
	Cancelled              bool             `json:"cancelled"`
	Skipped                []SkippedEvent   `json:"skipped,omitempty"`
	Failed                 []StudentFailure `json:"failed,omitempty"`
}

// BatchResult is the result of one evaluation.
type BatchResult struct {
	Reports []RiskReport `json:"reports"`
	Summary BatchSummary `json:"summary"`
}

// CountByLabel returns the number of reports per risk label.
func (b *BatchResult) CountByLabel() map[RiskLabel]int {
	counts := make(map[RiskLabel]int, len(AllRiskLabels))
	for _, r := range b.Reports {
		counts[r.RiskLabel]++
	}
	return counts
}

// FindReport returns the report of the given student.
func (b *BatchResult) FindReport(studentID string) (RiskReport, bool) {
	for _, r := range b.Reports {
		if r.StudentID == studentID {
			return r, true
		}
	}
	return RiskReport{}, false
}
