package cmd

import (
	"github.com/attendrisk/attendrisk/core"
	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/spf13/cobra"
)

// evaluateCmd ranks every student by attendance risk.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Rank students by risk of missing the attendance requirement.",
	Long: `Evaluate attendance logs and camera detections for the configured term.

Every session of every student is resolved to present, late, absent or excused.
The attendance summary then feeds a logistic risk model that scores each student
between 0 and 1 and explains the score with the features that drove it.

Sessions, roster, excused pairs, carryover and custom weights are read from
.attendrisk.yaml (or --config). Malformed input rows are skipped and counted.

Examples:
  # Rank all students from logs and detections
  attendrisk evaluate --logs logs.csv --detections frames.json

  # Only students who need attention, with reasons and outlook
  attendrisk evaluate --logs logs.csv --min-label watch --detail --explain

  # Export for a spreadsheet
  attendrisk evaluate --logs logs.csv --output csv --output-file risk.csv

  # Columnar export for analytics
  attendrisk evaluate --logs logs.csv --output parquet --output-file risk.parquet`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteEvaluate(rootCtx, cfg, historyManager); err != nil {
			contract.LogFatal("Cannot run evaluation", err)
		}
	},
}
