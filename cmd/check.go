package cmd

import (
	"github.com/attendrisk/attendrisk/core"
	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/spf13/cobra"
)

// checkCmd focused on scheduled alerting.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fail when too many students are at risk (for scheduled jobs)",
	Long: `Evaluate the term and exit with a non-zero code when the number of at-risk
students exceeds --max-at-risk.

Designed for cron jobs and pipelines that alert on failure. The output lists the
label counts and the first at-risk students with their strongest reason.

Examples:
  # Alert as soon as any student is at risk
  attendrisk check --logs logs.csv

  # Tolerate up to three at-risk students
  attendrisk check --logs logs.csv --max-at-risk 3`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteCheck(rootCtx, cfg, historyManager); err != nil {
			contract.LogFatal("Attendance check failed", err)
		}
	},
}
