// Package outwriter has output and writer logic.
package outwriter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/schema"
	"golang.org/x/term"
)

// DateTimeFormat is the layout used for human-readable timestamps.
const DateTimeFormat = "2006-01-02 15:04"

// LogEvaluationHeader prints a concise, 2-line header before an evaluation.
// It goes to stderr so that machine-readable output on stdout stays clean.
func LogEvaluationHeader(cfg *contract.Config) {
	writeEvaluationHeader(os.Stderr, cfg)
}

func writeEvaluationHeader(w io.Writer, cfg *contract.Config) {
	// Line 1: The inputs
	_, _ = fmt.Fprintf(w, "🔎 Logs: %s | Detections: %s\n", inputName(cfg.LogsPath), inputName(cfg.DetectionsPath))

	// Line 2: The term covered by the configured sessions
	sessions := cfg.Engine.Sessions
	if len(sessions) == 0 {
		_, _ = fmt.Fprintf(w, "📅 Term: no sessions configured\n")
		return
	}
	first := slices.MinFunc(sessions, func(a, b schema.SessionWindow) int { return a.Start.Compare(b.Start) })
	last := slices.MaxFunc(sessions, func(a, b schema.SessionWindow) int { return a.End.Compare(b.End) })
	_, _ = fmt.Fprintf(w, "📅 Term: %s → %s (%d of %d planned sessions)\n",
		first.Start.Format(DateTimeFormat), last.End.Format(DateTimeFormat),
		len(sessions), cfg.Engine.EffectivePlannedSessions())
}

func inputName(path string) string {
	if path == "" {
		return "none"
	}
	return filepath.Base(path)
}

// getMaxTableTextWidth calculates the maximum width for the explanation column in
// table output based on terminal width and table configuration.
func getMaxTableTextWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 { // Not set by override
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			termWidth = 80 // Conservative default for narrow terminals and CI
		} else {
			termWidth = detectedWidth
		}
	}

	// Rank + Student + Score + Label + Attendance with borders/padding
	baseWidth := 50
	if cfg.Detail {
		baseWidth += 45 // Late + Trend + Needed + Budget
	}
	baseWidth += 10 // table borders and separators

	available := termWidth - baseWidth
	if available < 20 {
		return 20
	}
	if available > 80 {
		return 80
	}
	return available
}
