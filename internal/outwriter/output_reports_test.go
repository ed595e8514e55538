package outwriter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReports() []schema.RiskReport {
	return []schema.RiskReport{
		{
			StudentID: "s2",
			RiskScore: 0.8123,
			RiskLabel: schema.AtRiskLabel,
			Explanation: []schema.ExplanationFactor{
				{Factor: schema.FeatureMarginToThreshold, ContributionWeight: 1.2, Text: "attendance is 15.0 points below the 75% requirement"},
				{Factor: schema.FeatureTrendSlope, ContributionWeight: 0.4, Text: "attendance dropped from 60% to 50% over the last 2 sessions"},
			},
			Summary: schema.TermSummary{StudentID: "s2", TotalSessions: 10, AttendedSessions: 6, LateCount: 2, CurrentPercentage: 0.6, TrailingTrend: 0.5},
			Outlook: schema.Outlook{SessionsRemaining: 2, SessionsNeeded: 3, Recoverable: false},
		},
		{
			StudentID:      "s1",
			RiskScore:      0.1,
			RiskLabel:      schema.SafeLabel,
			FallbackScored: true,
			Summary:        schema.TermSummary{StudentID: "s1", TotalSessions: 10, AttendedSessions: 10, CurrentPercentage: 1, TrailingTrend: 1},
			Outlook:        schema.Outlook{SessionsRemaining: 2, AbsenceBudget: 2, Recoverable: true},
		},
	}
}

func testConfig() *contract.Config {
	return &contract.Config{Precision: 2, Workers: 2, Width: 120, HistoryBackend: schema.NoneBackend}
}

func TestWriteReportTable(t *testing.T) {
	cfg := testConfig()
	cfg.Detail = true
	cfg.Explain = true
	cfg.Width = 300
	fmtFloat, intFmt := createFormatters(cfg.Precision)
	summary := schema.BatchSummary{StudentCount: 3, SkippedEventCount: 4, FallbackScoredCount: 1, Cancelled: true, UnevaluatedCount: 1}

	var buf bytes.Buffer
	err := writeReportTable(&buf, schema.EnrichReports(sampleReports()), summary, cfg, fmtFloat, intFmt, time.Second)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "STUDENT")
	assert.Contains(t, out, "s2")
	assert.Contains(t, out, "0.81")
	assert.Contains(t, out, "At Risk")
	assert.Contains(t, out, "Safe*")
	assert.Contains(t, out, "6/10 (60.00%)")
	assert.Contains(t, out, "3/2!")
	assert.Contains(t, out, "attendance is 15.0 points below")
	assert.Contains(t, out, "Showing 2 of 3 students (skipped events: 4")
	assert.Contains(t, out, "scored by the fallback rule model")
	assert.Contains(t, out, "Evaluation cancelled, 1 student(s) not evaluated")
	assert.Contains(t, out, "History backend: none")
}

func TestWriteReportCSV(t *testing.T) {
	fmtFloat, intFmt := createFormatters(3)
	var buf bytes.Buffer
	require.NoError(t, writeReportCSV(&buf, schema.EnrichReports(sampleReports()), fmtFloat, intFmt))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "rank", records[0][0])
	assert.Len(t, records[0], 16)

	first := records[1]
	assert.Equal(t, []string{"1", "s2", "0.812", "at_risk", "6", "10", "2", "0"}, first[:8])
	assert.Equal(t, "false", first[12])
	assert.Equal(t, "margin_to_threshold", first[14])
	assert.Contains(t, first[15], " | ")

	second := records[2]
	assert.Equal(t, "true", second[13])
	assert.Equal(t, "", second[14])
}

func TestWriteReportResults_JSONFile(t *testing.T) {
	cfg := testConfig()
	cfg.Output = schema.JSONOut
	cfg.OutputFile = filepath.Join(t.TempDir(), "reports.json")

	summary := schema.BatchSummary{StudentCount: 2}
	require.NoError(t, WriteReportResults(sampleReports(), summary, cfg, time.Millisecond))

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	var doc struct {
		Reports []map[string]any `json:"reports"`
		Summary map[string]any   `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Reports, 2)
	assert.Equal(t, float64(1), doc.Reports[0]["rank"])
	assert.Equal(t, "s2", doc.Reports[0]["student_id"])
	assert.Equal(t, "at_risk", doc.Reports[0]["risk_label"])
	assert.Equal(t, float64(2), doc.Summary["student_count"])
}

func TestWriteReportResults_Parquet(t *testing.T) {
	cfg := testConfig()
	cfg.Output = schema.ParquetOut
	assert.ErrorIs(t, WriteReportResults(sampleReports(), schema.BatchSummary{}, cfg, 0), errParquetNeedsFile)

	cfg.OutputFile = filepath.Join(t.TempDir(), "reports.parquet")
	require.NoError(t, WriteReportResults(sampleReports(), schema.BatchSummary{}, cfg, 0))
	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "PAR1"))
}

func TestWriteReportResults_CSVFile(t *testing.T) {
	cfg := testConfig()
	cfg.Output = schema.CSVOut
	cfg.OutputFile = filepath.Join(t.TempDir(), "reports.csv")
	require.NoError(t, WriteReportResults(sampleReports(), schema.BatchSummary{}, cfg, 0))

	data, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestFormatHelpers(t *testing.T) {
	fmtFloat, _ := createFormatters(1)
	assert.Equal(t, "3/4 (75.0%)", formatAttendance(schema.TermSummary{AttendedSessions: 3, TotalSessions: 4, CurrentPercentage: 0.75}, fmtFloat))
	assert.Equal(t, "2/5", formatNeeded(schema.Outlook{SessionsNeeded: 2, SessionsRemaining: 5, Recoverable: true}))
	assert.Equal(t, "-", topExplanation(schema.RiskReport{}))
	assert.Equal(t, "", joinExplanation(nil))
}

func TestGetMaxTableTextWidth(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		detail bool
		want   int
	}{
		{"narrow terminal clamps to minimum", 40, false, 20},
		{"wide terminal clamps to maximum", 300, false, 80},
		{"medium terminal", 100, false, 40},
		{"detail columns take space", 130, true, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &contract.Config{Width: tt.width, Detail: tt.detail}
			assert.Equal(t, tt.want, getMaxTableTextWidth(cfg))
		})
	}
}

func TestWriteEvaluationHeader(t *testing.T) {
	start := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	cfg := &contract.Config{LogsPath: "/tmp/term/logs.csv"}
	cfg.Engine.PlannedSessions = 12
	cfg.Engine.Sessions = []schema.SessionWindow{
		{ID: "b", Start: start.Add(48 * time.Hour), End: start.Add(49 * time.Hour)},
		{ID: "a", Start: start, End: start.Add(time.Hour)},
	}

	var buf bytes.Buffer
	writeEvaluationHeader(&buf, cfg)
	out := buf.String()
	assert.Contains(t, out, "Logs: logs.csv | Detections: none")
	assert.Contains(t, out, "2024-01-08 09:00 → 2024-01-10 10:00 (2 of 12 planned sessions)")

	buf.Reset()
	writeEvaluationHeader(&buf, &contract.Config{})
	assert.Contains(t, buf.String(), "no sessions configured")
}
