// Package agg has the session aggregation and term summary logic for attendance events.
package agg

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/attendrisk/attendrisk/schema"
)

// Aggregate resolves events into one AttendanceRecord per student per configured session.
// Students are the union of the roster, the carryover keys and the event students.
// The output is sorted by student ID and then by session start.
func Aggregate(events []schema.PresenceEvent, cfg schema.EngineConfig) []schema.AttendanceRecord {
	byStudent := GroupByStudent(events)
	students := Students(byStudent, cfg)
	records := make([]schema.AttendanceRecord, 0, len(students)*len(cfg.Sessions))
	for _, id := range students {
		records = append(records, AggregateStudent(id, byStudent[id], cfg)...)
	}
	return records
}

// GroupByStudent buckets events by student ID.
func GroupByStudent(events []schema.PresenceEvent) map[string][]schema.PresenceEvent {
	out := make(map[string][]schema.PresenceEvent)
	for _, ev := range events {
		out[ev.StudentID] = append(out[ev.StudentID], ev)
	}
	return out
}

// Students returns the sorted set of students that get a report.
func Students(byStudent map[string][]schema.PresenceEvent, cfg schema.EngineConfig) []string {
	seen := make(map[string]struct{}, len(byStudent)+len(cfg.Roster))
	for id := range byStudent {
		seen[id] = struct{}{}
	}
	for _, id := range cfg.Roster {
		seen[id] = struct{}{}
	}
	for id := range cfg.Carryover {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// AggregateStudent resolves the events of one student. Events for other students are ignored.
func AggregateStudent(studentID string, events []schema.PresenceEvent, cfg schema.EngineConfig) []schema.AttendanceRecord {
	bySession := make(map[string][]schema.PresenceEvent)
	for _, ev := range events {
		if ev.StudentID == studentID {
			bySession[ev.SessionID] = append(bySession[ev.SessionID], ev)
		}
	}

	sessions := slices.Clone(cfg.Sessions)
	slices.SortStableFunc(sessions, func(a, b schema.SessionWindow) int {
		return a.Start.Compare(b.Start)
	})
	grace := time.Duration(cfg.GracePeriodMinutes) * time.Minute

	records := make([]schema.AttendanceRecord, 0, len(sessions))
	for _, s := range sessions {
		rec := resolveSession(studentID, s, bySession[s.ID], grace, cfg.PresenceThreshold)
		if cfg.IsExcused(studentID, s.ID) || hasExcusedHint(bySession[s.ID]) {
			rec.Status = schema.ExcusedStatus
			rec.MinutesLate = nil
		}
		records = append(records, rec)
	}
	return records
}

// resolveSession applies the arrival rules to the winning event of one session.
func resolveSession(studentID string, s schema.SessionWindow, events []schema.PresenceEvent, grace time.Duration, threshold float64) schema.AttendanceRecord {
	rec := schema.AttendanceRecord{
		StudentID:    studentID,
		SessionID:    s.ID,
		SessionStart: s.Start,
		Status:       schema.AbsentStatus,
	}
	winner, ok := PickWinner(events)
	if !ok {
		return rec
	}
	rec.Source = winner.Source
	if winner.StatusHint == schema.AbsentHint || winner.Confidence < threshold {
		return rec
	}

	deadline := s.Start.Add(grace)
	switch {
	case !winner.Timestamp.After(deadline):
		rec.Status = schema.PresentStatus
	case !winner.Timestamp.After(s.End):
		rec.Status = schema.LateStatus
		late := int(math.Ceil(winner.Timestamp.Sub(deadline).Minutes()))
		rec.MinutesLate = &late
	}
	return rec
}

// PickWinner returns the deciding event among those that are not excuse markers.
// Highest confidence wins, ties go to the earliest timestamp, then source and hint, so
// the result does not depend on input order.
func PickWinner(events []schema.PresenceEvent) (schema.PresenceEvent, bool) {
	var best schema.PresenceEvent
	found := false
	for _, ev := range events {
		if ev.StatusHint == schema.ExcusedHint {
			continue
		}
		if !found || comparePrecedence(ev, best) < 0 {
			best = ev
			found = true
		}
	}
	return best, found
}

// comparePrecedence orders a before b when a should win.
func comparePrecedence(a, b schema.PresenceEvent) int {
	if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
		return c
	}
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	return cmp.Compare(a.StatusHint, b.StatusHint)
}

func hasExcusedHint(events []schema.PresenceEvent) bool {
	return slices.ContainsFunc(events, func(ev schema.PresenceEvent) bool {
		return ev.StatusHint == schema.ExcusedHint
	})
}
