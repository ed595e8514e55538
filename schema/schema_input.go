package schema

// LogRecord is the log-mode adapter shape. Timestamps stay as text so that the
// normalizer can count unparsable ones instead of the reader rejecting the file.
type LogRecord struct {
	StudentID  string `json:"student_id"`
	SessionID  string `json:"session_id"`
	Timestamp  string `json:"timestamp"`
	StatusHint string `json:"status_hint,omitempty"`
	Uncertain  bool   `json:"uncertain,omitempty"`
	Invalid    string `json:"-"` // set by adapters that could not read the record
}

// VisionDetection is the shape produced by an external face detector.
type VisionDetection struct {
	FrameTimestamp     string  `json:"frame_timestamp"`
	StudentID          string  `json:"student_id"`
	DetectorConfidence float64 `json:"detector_confidence"`
	Invalid            string  `json:"-"` // set by adapters that could not read the detection
}

// TermData holds every raw input of one evaluation window.
type TermData struct {
	Logs       []LogRecord       `json:"logs"`
	Detections []VisionDetection `json:"detections"`
}

// Len returns the number of raw inputs.
func (d TermData) Len() int {
	return len(d.Logs) + len(d.Detections)
}
