package iostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/internal/parquet"
	"github.com/attendrisk/attendrisk/schema"
)

// ClearHistory removes all evaluation history for the specified backend.
// For SQLite, it deletes the database file.
// For SQL backends (MySQL/PostgreSQL), it drops the history tables.
// For NoneBackend, it does nothing.
func ClearHistory(backend schema.DatabaseBackend, dbFilePath, connStr string) error {
	switch backend {
	case schema.SQLiteBackend:
		if dbFilePath == "" {
			return errors.New("dbFilePath cannot be empty for SQLite backend")
		}
		if err := os.Remove(dbFilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove SQLite database file %s: %w", dbFilePath, err)
		}
		return nil

	case schema.MySQLBackend, schema.PostgreSQLBackend:
		// Reports first, then runs
		tables := slices.Clone(historyTables)
		slices.Reverse(tables)
		for _, table := range tables {
			if err := dropSQLTable(backend, connStr, table); err != nil {
				return err
			}
		}
		return nil

	case schema.NoneBackend:
		return nil

	default:
		return fmt.Errorf("unsupported history backend for clearing: %s", backend)
	}
}

// dropSQLTable connects to the SQL database and drops the table if it exists.
func dropSQLTable(backend schema.DatabaseBackend, connStr, tableName string) error {
	if err := validateTableName(tableName); err != nil {
		return err
	}
	db, err := openDB(backend, connStr)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteTableName(tableName, backend))
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", tableName, err)
	}
	return nil
}

// ExportOptions says where exported history goes. Files are written under
// OutputFile as a prefix and uploaded to S3 when a bucket is set.
type ExportOptions struct {
	OutputFile string
	S3         parquet.S3Config
}

// ExportHistory writes all stored runs and reports to Parquet files and returns
// their local paths.
func ExportHistory(ctx context.Context, store contract.HistoryStore, opts ExportOptions, w io.Writer) ([]string, error) {
	if opts.OutputFile == "" {
		return nil, errors.New("--export-file is required for export command")
	}
	if store == nil {
		return nil, errors.New("history store is not initialized")
	}

	status, err := store.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get history status: %w", err)
	}
	if status.TotalRuns == 0 {
		return nil, errors.New("no evaluation history found to export")
	}
	fmt.Fprintf(w, "Exporting data from %s backend...\n", status.Backend)
	fmt.Fprintf(w, "Total evaluation runs: %d\n", status.TotalRuns)
	fmt.Fprintf(w, "Total student reports: %d\n", status.TotalReports)

	runs, err := store.GetAllRuns()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve evaluation runs: %w", err)
	}
	reports, err := store.GetAllReports()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve student reports: %w", err)
	}

	runsFile := opts.OutputFile + ".evaluation_runs.parquet"
	parquetRuns := parquet.ConvertEvaluationRunRecords(runs)
	if err := parquet.WriteEvaluationRunsParquet(parquetRuns, runsFile); err != nil {
		return nil, fmt.Errorf("failed to write evaluation runs: %w", err)
	}
	fmt.Fprintf(w, "Exported %d evaluation runs to: %s\n", len(parquetRuns), runsFile)

	reportsFile := opts.OutputFile + ".student_reports.parquet"
	parquetReports := parquet.ConvertStudentReportRecords(reports)
	if err := parquet.WriteStudentReportsParquet(parquetReports, reportsFile); err != nil {
		return nil, fmt.Errorf("failed to write student reports: %w", err)
	}
	fmt.Fprintf(w, "Exported %d student reports to: %s\n", len(parquetReports), reportsFile)

	paths := []string{runsFile, reportsFile}
	if opts.S3.Bucket == "" {
		return paths, nil
	}

	client, err := parquet.NewS3Client(ctx, opts.S3)
	if err != nil {
		return paths, err
	}
	keys, err := parquet.UploadFiles(ctx, client, opts.S3, paths...)
	if err != nil {
		return paths, err
	}
	for _, key := range keys {
		fmt.Fprintf(w, "Uploaded s3://%s/%s\n", opts.S3.Bucket, key)
	}
	return paths, nil
}

// PrintHistoryStatus prints history status information.
func PrintHistoryStatus(w io.Writer, status schema.HistoryStatus) {
	fmt.Fprintf(w, "History Backend: %s\n", status.Backend)
	fmt.Fprintf(w, "Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	fmt.Fprintf(w, "Total Runs: %d\n", status.TotalRuns)
	if status.TotalRuns > 0 {
		fmt.Fprintf(w, "Last Run ID: %d\n", status.LastRunID)
		fmt.Fprintf(w, "Last Run: %s\n", status.LastRunTime.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Oldest Run: %s\n", status.OldestRunTime.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Total Reports: %d\n", status.TotalReports)
	}
	fmt.Fprintln(w, "Table Sizes:")
	for _, table := range historyTables {
		fmt.Fprintf(w, "  %s: %d rows\n", table, status.TableSizes[table])
	}
}
