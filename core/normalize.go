package core

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/attendrisk/attendrisk/schema"
)

// NormalizeStats counts what the normalizer dropped.
type NormalizeStats struct {
	Skipped            []schema.SkippedEvent
	FilteredDetections int
}

// Normalize converts log records and vision detections into one PresenceEvent stream.
// Malformed inputs are dropped and reported in the stats, never returned as an error.
// Log records come first in input order, followed by detections in input order.
func Normalize(data schema.TermData, cfg schema.EngineConfig) ([]schema.PresenceEvent, NormalizeStats) {
	var stats NormalizeStats
	events := make([]schema.PresenceEvent, 0, data.Len())

	lead := time.Duration(cfg.SessionLeadMinutes) * time.Minute
	known := make(map[string]schema.SessionWindow, len(cfg.Sessions))
	for _, s := range cfg.Sessions {
		known[s.ID] = s
	}
	for i, rec := range data.Logs {
		ev, err := normalizeLog(i, rec, known, lead, cfg)
		if err != nil {
			stats.skip(err)
			continue
		}
		events = append(events, ev)
	}

	windows := sortedSessions(cfg.Sessions)
	for i, det := range data.Detections {
		ev, filtered, err := normalizeDetection(i, det, windows, lead, cfg.ConfidenceFloor)
		switch {
		case err != nil:
			stats.skip(err)
		case filtered:
			stats.FilteredDetections++
		default:
			events = append(events, ev)
		}
	}
	return events, stats
}

func (s *NormalizeStats) skip(err *MalformedEventError) {
	s.Skipped = append(s.Skipped, schema.SkippedEvent{Index: err.Index, Source: err.Source, Reason: err.Reason})
}

// normalizeLog maps a log record field for field. The timestamp must fall inside the
// named session's window, opened early by lead, like a detection frame.
func normalizeLog(index int, rec schema.LogRecord, known map[string]schema.SessionWindow, lead time.Duration, cfg schema.EngineConfig) (schema.PresenceEvent, *MalformedEventError) {
	malformed := func(reason string) *MalformedEventError {
		return &MalformedEventError{Index: index, Source: schema.LogSource, Reason: reason}
	}
	if rec.Invalid != "" {
		return schema.PresenceEvent{}, malformed(rec.Invalid)
	}
	studentID := strings.TrimSpace(rec.StudentID)
	sessionID := strings.TrimSpace(rec.SessionID)
	if studentID == "" {
		return schema.PresenceEvent{}, malformed("missing student_id")
	}
	if sessionID == "" {
		return schema.PresenceEvent{}, malformed("missing session_id")
	}
	window, ok := known[sessionID]
	if !ok {
		return schema.PresenceEvent{}, malformed(fmt.Sprintf("unknown session %q", sessionID))
	}
	ts, err := schema.ParseTimestamp(rec.Timestamp)
	if err != nil {
		return schema.PresenceEvent{}, malformed(err.Error())
	}
	if !encloses(window, ts, lead) {
		return schema.PresenceEvent{}, malformed(fmt.Sprintf("timestamp %s outside session %q", ts.Format(time.RFC3339), sessionID))
	}
	hint := schema.StatusHint(strings.ToLower(strings.TrimSpace(rec.StatusHint)))
	if _, ok := schema.ValidStatusHints[hint]; !ok {
		return schema.PresenceEvent{}, malformed(fmt.Sprintf("unknown status_hint %q", rec.StatusHint))
	}

	confidence := 1.0
	if rec.Uncertain {
		confidence = cfg.UncertainLogConfidence
	}
	if hint == schema.AbsentHint {
		confidence = 0 // explicit non-presence never outranks a presence signal
	}
	return schema.PresenceEvent{
		StudentID:  studentID,
		SessionID:  sessionID,
		Timestamp:  ts,
		Source:     schema.LogSource,
		Confidence: confidence,
		StatusHint: hint,
	}, nil
}

func normalizeDetection(index int, det schema.VisionDetection, windows []schema.SessionWindow, lead time.Duration, floor float64) (schema.PresenceEvent, bool, *MalformedEventError) {
	malformed := func(reason string) *MalformedEventError {
		return &MalformedEventError{Index: index, Source: schema.VisionSource, Reason: reason}
	}
	if det.Invalid != "" {
		return schema.PresenceEvent{}, false, malformed(det.Invalid)
	}
	studentID := strings.TrimSpace(det.StudentID)
	if studentID == "" {
		return schema.PresenceEvent{}, false, malformed("missing student_id")
	}
	ts, err := schema.ParseTimestamp(det.FrameTimestamp)
	if err != nil {
		return schema.PresenceEvent{}, false, malformed(err.Error())
	}
	conf := det.DetectorConfidence
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return schema.PresenceEvent{}, false, malformed(fmt.Sprintf("detector_confidence %v outside [0,1]", conf))
	}
	if conf < floor {
		return schema.PresenceEvent{}, true, nil
	}
	session, ok := enclosingSession(windows, ts, lead)
	if !ok {
		return schema.PresenceEvent{}, false, malformed(fmt.Sprintf("no session encloses frame at %s", ts.Format(time.RFC3339)))
	}
	return schema.PresenceEvent{
		StudentID:          studentID,
		SessionID:          session.ID,
		Timestamp:          ts,
		Source:             schema.VisionSource,
		Confidence:         conf,
		DetectorConfidence: &conf,
	}, false, nil
}

// sortedSessions orders sessions by start, then ID, so overlapping windows map frames
// to the earliest session deterministically.
func sortedSessions(sessions []schema.SessionWindow) []schema.SessionWindow {
	out := slices.Clone(sessions)
	slices.SortFunc(out, func(a, b schema.SessionWindow) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// enclosingSession finds the session whose window, opened early by lead, contains t.
func enclosingSession(windows []schema.SessionWindow, t time.Time, lead time.Duration) (schema.SessionWindow, bool) {
	for _, w := range windows {
		if encloses(w, t, lead) {
			return w, true
		}
	}
	return schema.SessionWindow{}, false
}

func encloses(w schema.SessionWindow, t time.Time, lead time.Duration) bool {
	return !t.Before(w.Start.Add(-lead)) && !t.After(w.End)
}
