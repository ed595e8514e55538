package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/internal/iostore"
	"github.com/attendrisk/attendrisk/internal/parquet"
	"github.com/attendrisk/attendrisk/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// loadHistoryConfig reads the backend settings needed by history commands.
func loadHistoryConfig() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	backend := schema.DatabaseBackend(strings.ToLower(viper.GetString("history-backend")))
	if backend == "" {
		backend = schema.SQLiteBackend
	}
	if _, ok := schema.ValidDatabaseBackends[backend]; !ok {
		return fmt.Errorf("invalid history backend '%s'. must be sqlite, mysql, postgresql, none", backend)
	}
	connStr := viper.GetString("history-db-connect")
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	cfg.HistoryBackend = backend
	cfg.HistoryDBConnect = connStr
	cfg.ExportFile = viper.GetString("export-file")
	cfg.ExportBucket = viper.GetString("export-bucket")
	cfg.ExportRegion = viper.GetString("export-region")
	cfg.ExportEndpoint = viper.GetString("export-endpoint")
	return nil
}

// historySetup loads minimal configuration and opens the history store.
// History subcommands skip sharedSetup so that they work without input files or sessions.
func historySetup(_ *cobra.Command, _ []string) error {
	if err := loadHistoryConfig(); err != nil {
		return err
	}
	if err := iostore.InitStores(cfg.HistoryBackend, cfg.HistoryDBConnect); err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}
	return nil
}

// historyMigrateSetup does NOT open the store or create tables, so that migrations
// can run on a fresh database.
func historyMigrateSetup(_ *cobra.Command, _ []string) error {
	return loadHistoryConfig()
}

// historyCmd focused on evaluation history management.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the history of evaluation runs and exports",
	Long: `Manage the stored history of evaluations.

Every evaluate or check run is recorded, storing:
- Run metadata (timestamp, configuration, duration, counts)
- One row per student with attendance, score, label and top factor

This makes it possible to follow a student across the term and to export
the history to BI tools.

Supported backends: SQLite (default), MySQL, PostgreSQL, or None (disabled)

Subcommands:
  status  - Show history statistics
  export  - Export history to Parquet
  clear   - Remove all history
  migrate - Run database schema migrations

Examples:
  # Check history status
  attendrisk history status

  # Export for analysis in pandas/DuckDB
  attendrisk history export --export-file term-2024`,
}

// historyStatusCmd shows history status.
var historyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display history statistics and connection details",
	Long: `Show the backend, connection status, number of stored runs and reports,
the last and oldest run, and the size of each history table.

Examples:
  attendrisk history status
  attendrisk history status --history-backend postgresql --history-db-connect "host=db dbname=attendrisk"`,
	PreRunE: historySetup,
	Run: func(_ *cobra.Command, _ []string) {
		store := iostore.Manager.GetHistoryStore()
		if store == nil {
			contract.LogFatal("Failed to get history status", fmt.Errorf("history store is not initialized"))
		}
		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get history status", err)
		}
		iostore.PrintHistoryStatus(os.Stdout, status)
	},
}

// historyClearCmd clears the history.
var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all stored evaluation history",
	Long: `Delete all stored evaluation runs and student reports.

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  # Export before clearing
  attendrisk history export --export-file backup
  attendrisk history clear`,
	PreRunE: historyMigrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		dbFile := cfg.HistoryDBConnect
		if dbFile == "" {
			dbFile = contract.GetHistoryDBFilePath()
		}
		if err := iostore.ClearHistory(cfg.HistoryBackend, dbFile, cfg.HistoryDBConnect); err != nil {
			contract.LogFatal("Failed to clear history", err)
		}
		fmt.Println("History cleared successfully.")
	},
}

// historyExportCmd exports history to Parquet files.
var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export evaluation history to Parquet for BI tools and analytics",
	Long: `Export all stored history to two Parquet files:
- <export-file>.evaluation_runs.parquet - one row per evaluation run
- <export-file>.student_reports.parquet - one row per student per run

With --export-bucket the files are also uploaded to S3 using the default AWS
credential chain. --export-endpoint targets S3-compatible stores such as MinIO.

Requires: --export-file parameter

Examples:
  # Export all data
  attendrisk history export --export-file term-2024

  # Export and upload
  attendrisk history export --export-file term-2024 --export-bucket school-analytics --export-region eu-west-1

  # Use with DuckDB
  duckdb -c "SELECT risk_label, count(*) FROM read_parquet('term-2024.student_reports.parquet') GROUP BY 1"`,
	PreRunE: historySetup,
	Run: func(_ *cobra.Command, _ []string) {
		opts := iostore.ExportOptions{
			OutputFile: cfg.ExportFile,
			S3: parquet.S3Config{
				Bucket:   cfg.ExportBucket,
				Region:   cfg.ExportRegion,
				Endpoint: cfg.ExportEndpoint,
			},
		}
		if _, err := iostore.ExportHistory(rootCtx, iostore.Manager.GetHistoryStore(), opts, os.Stdout); err != nil {
			contract.LogFatal("Failed to export history", err)
		}
	},
}

// historyMigrateCmd runs database migrations for the history store.
var historyMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage database schema versions of the history store.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  # Migrate to latest version (default)
  attendrisk history migrate

  # Migrate to specific version
  attendrisk history migrate --target-version 1

  # Roll back everything
  attendrisk history migrate --target-version 0`,
	PreRunE: historyMigrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		targetVersion := viper.GetInt("target-version")
		if err := iostore.MigrateHistory(cfg.HistoryBackend, cfg.HistoryDBConnect, targetVersion, os.Stdout); err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
	},
}
