package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/internal/parquet"
	"github.com/attendrisk/attendrisk/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// reportsJSON is the document written by the json output mode.
type reportsJSON struct {
	Reports []schema.EnrichedRiskReport `json:"reports"`
	Summary schema.BatchSummary         `json:"summary"`
}

// WriteReportResults outputs ranked reports, dispatching based on the output format configured.
func WriteReportResults(reports []schema.RiskReport, summary schema.BatchSummary, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, intFmt := createFormatters(cfg.Precision)
	enriched := schema.EnrichReports(reports)

	switch cfg.Output {
	case schema.JSONOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, reportsJSON{Reports: enriched, Summary: summary})
		}, "Wrote JSON"); err != nil {
			return fmt.Errorf("error writing JSON output: %w", err)
		}
	case schema.CSVOut:
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeReportCSV(w, enriched, fmtFloat, intFmt)
		}, "Wrote CSV"); err != nil {
			return fmt.Errorf("error writing CSV output: %w", err)
		}
	case schema.ParquetOut:
		if cfg.OutputFile == "" {
			return errParquetNeedsFile
		}
		if err := writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return parquet.WriteReportRows(w, parquet.ConvertRiskReports(enriched))
		}, "Wrote Parquet"); err != nil {
			return fmt.Errorf("error writing Parquet output: %w", err)
		}
	default:
		// Default to human-readable table
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeReportTable(w, enriched, summary, cfg, fmtFloat, intFmt, duration)
		}, "Wrote table")
	}
	return nil
}

// writeReportTable generates and writes the human-readable table.
func writeReportTable(w io.Writer, reports []schema.EnrichedRiskReport, summary schema.BatchSummary, cfg *contract.Config, fmtFloat func(float64) string, intFmt string, duration time.Duration) error {
	table := tablewriter.NewWriter(w)

	// 1. Define Headers
	headers := []string{"Rank", "Student", "Score", "Label", "Attendance"}
	if cfg.Detail {
		headers = append(headers, "Late", "Trend", "Needed", "Budget")
	}
	if cfg.Explain {
		headers = append(headers, "Explain")
	}
	table.Header(headers)

	// 2. Configure Separators/Borders to match a minimal look
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	// 3. Populate Rows
	textWidth := getMaxTableTextWidth(cfg)
	data := make([][]string, 0, len(reports))
	for _, r := range reports {
		label := contract.GetPlainLabel(r.RiskLabel)
		if cfg.UseColors {
			label = contract.GetColorLabel(r.RiskLabel)
		}
		if r.FallbackScored {
			label += "*"
		}
		row := []string{
			strconv.Itoa(r.Rank),
			r.StudentID,
			fmtFloat(r.RiskScore),
			label,
			formatAttendance(r.Summary, fmtFloat),
		}
		if cfg.Detail {
			row = append(row,
				fmt.Sprintf(intFmt, r.Summary.LateCount),
				fmtFloat(r.Summary.TrailingTrend),
				formatNeeded(r.Outlook),
				fmt.Sprintf(intFmt, r.Outlook.AbsenceBudget),
			)
		}
		if cfg.Explain {
			row = append(row, contract.TruncateText(topExplanation(r.RiskReport), textWidth))
		}
		data = append(data, row)
	}

	// 4. Render the table
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	return writeReportFooter(w, len(reports), summary, cfg, duration)
}

// writeReportFooter prints batch counts under the table.
func writeReportFooter(w io.Writer, shown int, summary schema.BatchSummary, cfg *contract.Config, duration time.Duration) error {
	if _, err := fmt.Fprintf(w, "Showing %d of %d students (skipped events: %d, filtered detections: %d, fallback scored: %d)\n",
		shown, summary.StudentCount, summary.SkippedEventCount, summary.FilteredDetectionCount, summary.FallbackScoredCount); err != nil {
		return err
	}
	if summary.FallbackScoredCount > 0 {
		if _, err := fmt.Fprintln(w, "* scored by the fallback rule model"); err != nil {
			return err
		}
	}
	if len(summary.Failed) > 0 {
		if _, err := fmt.Fprintf(w, "⚠️  %d student(s) could not be evaluated\n", len(summary.Failed)); err != nil {
			return err
		}
	}
	if summary.Cancelled {
		if _, err := fmt.Fprintf(w, "⚠️  Evaluation cancelled, %d student(s) not evaluated\n", summary.UnevaluatedCount); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Evaluation completed in %v with %d workers. History backend: %s\n", duration, cfg.Workers, cfg.HistoryBackend)
	return err
}

// writeReportCSV writes the ranked reports in CSV format.
func writeReportCSV(w io.Writer, reports []schema.EnrichedRiskReport, fmtFloat func(float64) string, intFmt string) error {
	header := []string{
		"rank",
		"student_id",
		"risk_score",
		"risk_label",
		"attended_sessions",
		"total_sessions",
		"late_count",
		"excused_count",
		"current_percentage",
		"trailing_trend",
		"sessions_needed",
		"absence_budget",
		"recoverable",
		"fallback_scored",
		"top_factor",
		"explanation",
	}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, r := range reports {
			s := r.Summary
			topFactor := ""
			if name := schema.TopFactor(r.RiskReport); name != nil {
				topFactor = *name
			}
			rec := []string{
				strconv.Itoa(r.Rank),
				r.StudentID,
				fmtFloat(r.RiskScore),
				string(r.RiskLabel),
				fmt.Sprintf(intFmt, s.AttendedSessions),
				fmt.Sprintf(intFmt, s.TotalSessions),
				fmt.Sprintf(intFmt, s.LateCount),
				fmt.Sprintf(intFmt, s.ExcusedCount),
				fmtFloat(s.CurrentPercentage),
				fmtFloat(s.TrailingTrend),
				fmt.Sprintf(intFmt, r.Outlook.SessionsNeeded),
				fmt.Sprintf(intFmt, r.Outlook.AbsenceBudget),
				strconv.FormatBool(r.Outlook.Recoverable),
				strconv.FormatBool(r.FallbackScored),
				topFactor,
				joinExplanation(r.Explanation),
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		return nil
	})
}

// formatAttendance renders attended/total with the percentage.
func formatAttendance(s schema.TermSummary, fmtFloat func(float64) string) string {
	return fmt.Sprintf("%d/%d (%s%%)", s.AttendedSessions, s.TotalSessions, fmtFloat(s.CurrentPercentage*100))
}

// formatNeeded renders the sessions still needed, marking unreachable targets.
func formatNeeded(o schema.Outlook) string {
	if !o.Recoverable {
		return fmt.Sprintf("%d/%d!", o.SessionsNeeded, o.SessionsRemaining)
	}
	return fmt.Sprintf("%d/%d", o.SessionsNeeded, o.SessionsRemaining)
}

func topExplanation(r schema.RiskReport) string {
	if len(r.Explanation) == 0 {
		return "-"
	}
	return r.Explanation[0].Text
}

func joinExplanation(factors []schema.ExplanationFactor) string {
	parts := make([]string, len(factors))
	for i, f := range factors {
		parts[i] = f.Text
	}
	return strings.Join(parts, " | ")
}
