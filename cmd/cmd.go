// Package cmd defines the command-line interface for attendrisk.
package cmd

import (
	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the history subcommands to the parent history command
	historyCmd.AddCommand(historyStatusCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	flags := rootCmd.PersistentFlags()
	flags.String("logs", "", "Path to attendance log records (CSV or JSON)")
	flags.String("detections", "", "Path to vision detections (CSV or JSON)")
	flags.Bool("detail", false, "Print per-student lateness, trend and outlook")
	flags.Bool("explain", false, "Print the strongest reason behind each score")
	flags.IntP("limit", "l", contract.DefaultResultLimit, "Number of results to display")
	flags.String("min-label", string(schema.SafeLabel), "Only show students at or above this label: safe or watch or at_risk")
	flags.String("output", string(schema.TextOut), "Output format: text or csv or json or parquet")
	flags.String("output-file", "", "Optional path to write output to")
	flags.Int("precision", contract.DefaultPrecision, "Decimal precision for numeric columns")
	flags.Int("workers", contract.DefaultWorkers, "Number of concurrent workers")
	flags.Int("width", 0, "Terminal width override (0 = auto-detect)")
	flags.String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	flags.String("history-backend", string(schema.SQLiteBackend), "History backend: sqlite or mysql or postgresql or none")
	flags.String("history-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname?parseTime=true)")
	flags.String("metrics-file", "", "Write Prometheus batch metrics to this file")
	flags.String("log-level", "warn", "Diagnostics level: debug or info or warn or error or disabled")
	flags.String("config", "", "Path to config file")

	// Engine tunables that are scalars; sessions, roster and weights live in the config file
	flags.Int("grace-period-minutes", schema.DefaultGracePeriodMinutes, "Minutes after session start before an arrival counts as late")
	flags.Float64("required-percentage", schema.DefaultRequiredPercentage, "Attendance share students must reach (0-1)")
	flags.Int("trend-window-sessions", 0, "Sessions in the trailing trend window (0 = last quarter of the term)")
	flags.Float64("confidence-floor", schema.DefaultConfidenceFloor, "Vision detections below this confidence are dropped")
	flags.Float64("presence-threshold", schema.DefaultPresenceThreshold, "Minimum confidence of the deciding event to count as present")
	flags.Float64("uncertain-log-confidence", schema.DefaultUncertainLogConfidence, "Confidence given to log records flagged uncertain")
	flags.Int("session-lead-minutes", schema.DefaultSessionLeadMinutes, "Minutes before a session start that still map a frame to it")
	flags.Int("planned-sessions", 0, "Sessions planned for the whole term (0 = configured sessions)")
	if err := viper.BindPFlags(flags); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of checkCmd to Viper
	checkCmd.Flags().Int("max-at-risk", 0, "Fail when more students than this are at risk (-1 = no limit)")
	if err := viper.BindPFlags(checkCmd.Flags()); err != nil {
		contract.LogFatal("Error binding check flags", err)
	}

	// Bind all flags of historyExportCmd to Viper
	historyExportCmd.Flags().String("export-file", "", "Prefix of the exported Parquet files")
	historyExportCmd.Flags().String("export-bucket", "", "Optional S3 bucket to upload the export to")
	historyExportCmd.Flags().String("export-region", "", "AWS region of the export bucket")
	historyExportCmd.Flags().String("export-endpoint", "", "Custom S3 endpoint (MinIO, LocalStack)")
	if err := viper.BindPFlags(historyExportCmd.Flags()); err != nil {
		contract.LogFatal("Error binding history export flags", err)
	}

	// Bind all flags of historyMigrateCmd to Viper
	historyMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(historyMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding history migrate flags", err)
	}
}
