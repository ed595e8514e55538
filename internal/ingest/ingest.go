// Package ingest reads log records and vision detections from CSV or JSON files.
// Readers never judge individual records: a row with missing or unparsable values is
// passed through, marked Invalid when it cannot be decoded at all, so that the engine
// can count it as a malformed event.
package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/schema"
	"github.com/gabriel-vasile/mimetype"
)

// Format is the encoding of an input file.
type Format string

// All input formats supported.
const (
	CSVFormat  Format = "csv"
	JSONFormat Format = "json"
)

// sniffSize is how much of a file is read to detect its format.
const sniffSize = 3072

// ErrNoInput is returned when neither a log file nor a detection file is given.
var ErrNoInput = errors.New("at least one of --logs or --detections is required")

// Column names of the CSV layouts.
var (
	logColumns       = []string{"student_id", "session_id", "timestamp"}
	detectionColumns = []string{"frame_timestamp", "student_id", "detector_confidence"}
)

// DetectFormat picks the format from the file extension, falling back to content sniffing.
func DetectFormat(path string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return CSVFormat, nil
	case ".json":
		return JSONFormat, nil
	}
	mime := mimetype.Detect(head)
	switch {
	case mime.Is("application/json"):
		return JSONFormat, nil
	case mime.Is("text/csv"), mime.Is("text/plain"):
		return CSVFormat, nil
	default:
		return "", fmt.Errorf("unsupported input format %s for %s", mime.String(), path)
	}
}

// ReadTermData reads whichever inputs are given.
func ReadTermData(logsPath, detectionsPath string) (schema.TermData, error) {
	var data schema.TermData
	if logsPath == "" && detectionsPath == "" {
		return data, ErrNoInput
	}
	if logsPath != "" {
		logs, err := ReadLogRecords(logsPath)
		if err != nil {
			return data, err
		}
		data.Logs = logs
	}
	if detectionsPath != "" {
		detections, err := ReadDetections(detectionsPath)
		if err != nil {
			return data, err
		}
		data.Detections = detections
	}
	return data, nil
}

// ReadLogRecords reads log-mode records from a CSV or JSON file.
func ReadLogRecords(path string) ([]schema.LogRecord, error) {
	return readFile(path, ParseLogRecords)
}

// ReadDetections reads vision detections from a CSV or JSON file.
func ReadDetections(path string) ([]schema.VisionDetection, error) {
	return readFile(path, ParseDetections)
}

func readFile[T any](path string, parse func(io.Reader, Format) ([]T, error)) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	br := bufio.NewReaderSize(file, sniffSize)
	head, err := br.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	format, err := DetectFormat(path, head)
	if err != nil {
		return nil, err
	}
	out, err := parse(br, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return out, nil
}

// ParseLogRecords decodes log records. CSV input needs a header row naming at least
// student_id, session_id and timestamp; status_hint and uncertain are optional.
func ParseLogRecords(r io.Reader, format Format) ([]schema.LogRecord, error) {
	if format == JSONFormat {
		return decodeJSON(r, func(elem json.RawMessage) schema.LogRecord {
			var rec schema.LogRecord
			if err := json.Unmarshal(elem, &rec); err != nil {
				return schema.LogRecord{Invalid: fmt.Sprintf("unreadable record: %v", err)}
			}
			return rec
		})
	}
	var out []schema.LogRecord
	err := readCSV(r, logColumns, func(row csvRow) {
		rec := schema.LogRecord{
			StudentID:  row.get("student_id"),
			SessionID:  row.get("session_id"),
			Timestamp:  row.get("timestamp"),
			StatusHint: row.get("status_hint"),
		}
		if v := row.get("uncertain"); v != "" {
			uncertain, err := contract.ParseBoolString(v)
			// An unreadable flag is taken as uncertain.
			rec.Uncertain = uncertain || err != nil
		}
		out = append(out, rec)
	})
	return out, err
}

// jsonDetection keeps a missing confidence apart from an explicit zero.
type jsonDetection struct {
	FrameTimestamp     string   `json:"frame_timestamp"`
	StudentID          string   `json:"student_id"`
	DetectorConfidence *float64 `json:"detector_confidence"`
}

// ParseDetections decodes vision detections. A missing or unparsable confidence
// becomes NaN, which the engine rejects as malformed.
func ParseDetections(r io.Reader, format Format) ([]schema.VisionDetection, error) {
	if format == JSONFormat {
		return decodeJSON(r, func(elem json.RawMessage) schema.VisionDetection {
			var raw jsonDetection
			if err := json.Unmarshal(elem, &raw); err != nil {
				return schema.VisionDetection{DetectorConfidence: math.NaN(), Invalid: fmt.Sprintf("unreadable detection: %v", err)}
			}
			det := schema.VisionDetection{
				FrameTimestamp:     raw.FrameTimestamp,
				StudentID:          raw.StudentID,
				DetectorConfidence: math.NaN(),
			}
			if raw.DetectorConfidence == nil {
				det.Invalid = "missing detector_confidence"
			} else {
				det.DetectorConfidence = *raw.DetectorConfidence
			}
			return det
		})
	}
	var out []schema.VisionDetection
	err := readCSV(r, detectionColumns, func(row csvRow) {
		conf, err := strconv.ParseFloat(row.get("detector_confidence"), 64)
		if err != nil {
			conf = math.NaN()
		}
		out = append(out, schema.VisionDetection{
			FrameTimestamp:     row.get("frame_timestamp"),
			StudentID:          row.get("student_id"),
			DetectorConfidence: conf,
		})
	})
	return out, err
}

// decodeJSON reads a JSON array and decodes each element on its own, so one bad
// element is handed to the engine as a malformed record instead of failing the file.
func decodeJSON[T any](r io.Reader, decode func(json.RawMessage) T) ([]T, error) {
	var elems []json.RawMessage
	if err := json.NewDecoder(r).Decode(&elems); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}
	out := make([]T, 0, len(elems))
	for _, elem := range elems {
		out = append(out, decode(elem))
	}
	return out, nil
}

// csvRow gives access to one CSV record by column name.
type csvRow struct {
	index  map[string]int
	record []string
}

func (r csvRow) get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

// readCSV reads a headed CSV stream, calling fn for each data row. Short rows are kept.
func readCSV(r io.Reader, required []string, fn func(csvRow)) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		index[name] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("CSV header is missing column %q", col)
		}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV row: %w", err)
		}
		fn(csvRow{index: index, record: record})
	}
}
