package agg

import (
	"slices"

	"github.com/attendrisk/attendrisk/schema"
)

// Summarize rolls records up into one TermSummary per student.
func Summarize(records []schema.AttendanceRecord, cfg schema.EngineConfig) map[string]schema.TermSummary {
	byStudent := make(map[string][]schema.AttendanceRecord)
	for _, r := range records {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}
	for id := range cfg.Carryover {
		if _, ok := byStudent[id]; !ok {
			byStudent[id] = nil
		}
	}
	out := make(map[string]schema.TermSummary, len(byStudent))
	for id, recs := range byStudent {
		out[id] = SummarizeStudent(id, recs, cfg)
	}
	return out
}

// SummarizeStudent computes the summary of one student. Excused sessions count
// toward neither side of the percentage. Carryover counts join the term totals but
// not the trend window.
func SummarizeStudent(studentID string, records []schema.AttendanceRecord, cfg schema.EngineConfig) schema.TermSummary {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b schema.AttendanceRecord) int {
		return a.SessionStart.Compare(b.SessionStart)
	})

	window := cfg.EffectiveTrendWindow()
	summary := schema.TermSummary{StudentID: studentID, TrendWindow: window}
	indicators := make([]float64, 0, len(ordered))
	for _, r := range ordered {
		if !r.Countable() {
			summary.ExcusedCount++
			continue
		}
		summary.TotalSessions++
		if r.Attended() {
			summary.AttendedSessions++
			indicators = append(indicators, 1)
		} else {
			indicators = append(indicators, 0)
		}
		if r.Status == schema.LateStatus {
			summary.LateCount++
		}
	}

	if carry, ok := cfg.Carryover[studentID]; ok {
		summary.AttendedSessions += carry.Present
		summary.TotalSessions += carry.Present + carry.Absent
	}

	summary.CurrentPercentage = 1.0
	if summary.TotalSessions > 0 {
		summary.CurrentPercentage = float64(summary.AttendedSessions) / float64(summary.TotalSessions)
	}

	summary.TrailingTrend = summary.CurrentPercentage
	if len(indicators) >= window {
		recent := indicators[len(indicators)-window:]
		var sum float64
		for _, v := range recent {
			sum += v
		}
		summary.TrailingTrend = sum / float64(window)
		summary.RecentIndicators = slices.Clone(recent)
	}
	return summary
}
