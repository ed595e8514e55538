package contract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/attendrisk/attendrisk/schema"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// Risk label display values.
const (
	AtRiskValue = "At Risk" // At risk value
	WatchValue  = "Watch"   // Watch value
	SafeValue   = "Safe"    // Safe value
)

// Color variables for console output.
var (
	AtRiskColor = color.New(color.FgRed, color.Bold) // AtRiskColor represents standard danger.
	WatchColor  = color.New(color.FgYellow)          // WatchColor represents standard caution, not bold.
	SafeColor   = color.New(color.FgCyan)            // SafeColor represents informational / low-priority signal.
)

// GetPlainLabel returns a plain text label for a risk label.
// This is the core logic used for CSV, JSON, and table printing.
func GetPlainLabel(label schema.RiskLabel) string {
	switch label {
	case schema.AtRiskLabel:
		return AtRiskValue
	case schema.WatchLabel:
		return WatchValue
	default:
		return SafeValue
	}
}

// GetColorLabel returns a colored text label for console output (table).
// It uses GetPlainLabel to determine the string, and then applies the appropriate color.
func GetColorLabel(label schema.RiskLabel) string {
	text := GetPlainLabel(label)

	switch label {
	case schema.AtRiskLabel:
		return AtRiskColor.Sprint(text)
	case schema.WatchLabel:
		return WatchColor.Sprint(text)
	default:
		return SafeColor.Sprint(text)
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. It falls back to os.Stdout when no path is given.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Fatal %s: %v\n", msg, err)
	os.Exit(1)
}

// LogWarn logs a warning message to stderr.
func LogWarn(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "Warn %s: %v\n", msg, err)
}

// NewLogger returns the diagnostics logger used by the engine, writing to w.
func NewLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: color.NoColor}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// GetHistoryDBFilePath returns the path to the SQLite DB file for history storage.
func GetHistoryDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".attendrisk_history.db"
	}
	return filepath.Join(homeDir, ".attendrisk_history.db")
}

// TruncateText truncates text to a maximum width with an ellipsis suffix.
// Requires maxWidth > 3 to ensure there's space for both the "..." suffix and at least one character of content.
func TruncateText(text string, maxWidth int) string {
	runes := []rune(text)
	if len(runes) > maxWidth && maxWidth > 3 {
		return string(runes[:maxWidth-3]) + "..."
	}
	return text
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
// Returns an error for invalid values.
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}
