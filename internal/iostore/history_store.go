package iostore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"time"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/schema"
)

// HistoryStoreImpl implements the HistoryStore interface.
type HistoryStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.HistoryStore = &HistoryStoreImpl{} // Compile-time check

// NewHistoryStore creates a HistoryStore with the specified backend and makes sure
// its tables exist. The none backend returns a store that records nothing.
func NewHistoryStore(backend schema.DatabaseBackend, connStr string) (contract.HistoryStore, error) {
	if backend == schema.NoneBackend {
		return &HistoryStoreImpl{backend: backend}, nil
	}
	db, err := openDB(backend, connStr)
	if err != nil {
		return nil, err
	}
	if err := createHistoryTables(db, backend); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}
	return &HistoryStoreImpl{db: db, backend: backend}, nil
}

// createHistoryTables applies the up migrations of the backend in order. Every
// statement is idempotent, so this is safe on a database that was migrated already.
func createHistoryTables(db *sql.DB, backend schema.DatabaseBackend) error {
	dir, err := migrationDir(backend)
	if err != nil {
		return err
	}
	files, err := fs.Glob(migrationsFS, path.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	slices.Sort(files)
	for _, file := range files {
		query, err := fs.ReadFile(migrationsFS, file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		if _, err := db.Exec(string(query)); err != nil {
			return fmt.Errorf("failed to apply %s: %w", path.Base(file), err)
		}
	}
	return nil
}

// disabled reports whether the store records nothing.
func (hs *HistoryStoreImpl) disabled() bool {
	return hs.backend == schema.NoneBackend || hs.db == nil
}

// BeginRun creates a new evaluation run and returns its unique ID.
func (hs *HistoryStoreImpl) BeginRun(startTime time.Time, runUUID string, configParams map[string]any) (int64, error) {
	if hs.disabled() {
		return 0, nil
	}

	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	table := quoteTableName(evaluationRunsTable, hs.backend)
	var runID int64
	switch hs.backend {
	case schema.PostgreSQLBackend:
		query := fmt.Sprintf(`INSERT INTO %s (run_uuid, start_time, config_params) VALUES ($1, $2, $3) RETURNING run_id`, table)
		err = hs.db.QueryRow(query, runUUID, startTime, string(configJSON)).Scan(&runID)
	default: // SQLite and MySQL
		query := fmt.Sprintf(`INSERT INTO %s (run_uuid, start_time, config_params) VALUES (?, ?, ?)`, table)
		var result sql.Result
		result, err = hs.db.Exec(query, runUUID, formatTime(startTime, hs.backend), string(configJSON))
		if err == nil {
			runID, err = result.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert evaluation run: %w", err)
	}
	return runID, nil
}

// EndRun updates the evaluation run with completion data.
func (hs *HistoryStoreImpl) EndRun(runID int64, endTime time.Time, summary schema.BatchSummary) error {
	if hs.disabled() {
		return nil
	}

	table := quoteTableName(evaluationRunsTable, hs.backend)
	start := timeScanner{backend: hs.backend}
	query := rebind(fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = ?`, table), hs.backend)
	if err := hs.db.QueryRow(query, runID).Scan(start.dest()); err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}
	startTime, err := start.value()
	if err != nil {
		return err
	}
	var durationMs int64
	if startTime != nil {
		durationMs = endTime.Sub(*startTime).Milliseconds()
	}

	update := rebind(fmt.Sprintf(`UPDATE %s SET end_time = ?, run_duration_ms = ?, student_count = ?, skipped_events = ?, fallback_scored = ? WHERE run_id = ?`, table), hs.backend)
	_, err = hs.db.Exec(update,
		formatTime(endTime, hs.backend), durationMs,
		summary.StudentCount, summary.SkippedEventCount, summary.FallbackScoredCount, runID)
	if err != nil {
		return fmt.Errorf("failed to update evaluation run: %w", err)
	}
	return nil
}

// RecordReport stores the report of one student.
func (hs *HistoryStoreImpl) RecordReport(runID int64, evaluatedAt time.Time, report schema.RiskReport) error {
	if hs.disabled() {
		return nil
	}

	table := quoteTableName(studentReportsTable, hs.backend)
	query := rebind(fmt.Sprintf(`
		INSERT INTO %s (run_id, student_id, evaluated_at, attended_sessions, total_sessions, late_count,
		                current_percentage, trailing_trend, risk_score, risk_label, fallback_scored, top_factor)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, table), hs.backend)
	s := report.Summary
	_, err := hs.db.Exec(query,
		runID, report.StudentID, formatTime(evaluatedAt, hs.backend),
		s.AttendedSessions, s.TotalSessions, s.LateCount,
		s.CurrentPercentage, s.TrailingTrend, report.RiskScore, string(report.RiskLabel),
		report.FallbackScored, schema.TopFactor(report))
	if err != nil {
		return fmt.Errorf("failed to insert report for %s: %w", report.StudentID, err)
	}
	return nil
}

// GetStatus returns status information about the history store.
func (hs *HistoryStoreImpl) GetStatus() (schema.HistoryStatus, error) {
	status := schema.HistoryStatus{
		Backend:    string(hs.backend),
		Connected:  hs.db != nil,
		TableSizes: make(map[string]int64),
	}
	if hs.disabled() {
		return status, nil
	}

	for _, t := range historyTables {
		var count int64
		if err := hs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(t, hs.backend))).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", t, err)
		}
		status.TableSizes[t] = count
	}
	status.TotalRuns = status.TableSizes[evaluationRunsTable]
	status.TotalReports = status.TableSizes[studentReportsTable]
	if status.TotalRuns == 0 {
		return status, nil
	}

	runs := quoteTableName(evaluationRunsTable, hs.backend)
	last := timeScanner{backend: hs.backend}
	row := hs.db.QueryRow(fmt.Sprintf("SELECT run_id, start_time FROM %s ORDER BY run_id DESC LIMIT 1", runs))
	if err := row.Scan(&status.LastRunID, last.dest()); err != nil {
		return status, fmt.Errorf("failed to get last run info: %w", err)
	}
	oldest := timeScanner{backend: hs.backend}
	row = hs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id ASC LIMIT 1", runs))
	if err := row.Scan(oldest.dest()); err != nil {
		return status, fmt.Errorf("failed to get oldest run time: %w", err)
	}

	lastTime, err := last.value()
	if err != nil {
		return status, err
	}
	oldestTime, err := oldest.value()
	if err != nil {
		return status, err
	}
	if lastTime != nil {
		status.LastRunTime = *lastTime
	}
	if oldestTime != nil {
		status.OldestRunTime = *oldestTime
	}
	return status, nil
}

// GetAllRuns retrieves every evaluation run, oldest first.
func (hs *HistoryStoreImpl) GetAllRuns() ([]schema.EvaluationRunRecord, error) {
	if hs.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, run_uuid, start_time, end_time, run_duration_ms, student_count,
		skipped_events, fallback_scored, config_params FROM %s ORDER BY run_id`,
		quoteTableName(evaluationRunsTable, hs.backend))
	rows, err := hs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluation runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.EvaluationRunRecord
	for rows.Next() {
		var record schema.EvaluationRunRecord
		start := timeScanner{backend: hs.backend}
		end := timeScanner{backend: hs.backend}
		if err := rows.Scan(&record.RunID, &record.RunUUID, start.dest(), end.dest(), &record.RunDurationMs,
			&record.StudentCount, &record.SkippedEvents, &record.FallbackScored, &record.ConfigParams); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation run: %w", err)
		}
		startTime, err := start.value()
		if err != nil {
			return nil, err
		}
		if startTime != nil {
			record.StartTime = *startTime
		}
		if record.EndTime, err = end.value(); err != nil {
			return nil, err
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluation runs: %w", err)
	}
	return results, nil
}

// GetAllReports retrieves every stored student report, by run then student.
func (hs *HistoryStoreImpl) GetAllReports() ([]schema.StudentReportRecord, error) {
	if hs.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, student_id, evaluated_at, attended_sessions, total_sessions, late_count,
		current_percentage, trailing_trend, risk_score, risk_label, fallback_scored, top_factor
		FROM %s ORDER BY run_id, student_id`, quoteTableName(studentReportsTable, hs.backend))
	rows, err := hs.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query student reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.StudentReportRecord
	for rows.Next() {
		var record schema.StudentReportRecord
		evaluated := timeScanner{backend: hs.backend}
		if err := rows.Scan(&record.RunID, &record.StudentID, evaluated.dest(), &record.AttendedSessions,
			&record.TotalSessions, &record.LateCount, &record.CurrentPercentage, &record.TrailingTrend,
			&record.RiskScore, &record.RiskLabel, &record.FallbackScored, &record.TopFactor); err != nil {
			return nil, fmt.Errorf("failed to scan student report: %w", err)
		}
		evaluatedAt, err := evaluated.value()
		if err != nil {
			return nil, err
		}
		if evaluatedAt != nil {
			record.EvaluatedAt = *evaluatedAt
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating student reports: %w", err)
	}
	return results, nil
}

// Close closes the database connection.
func (hs *HistoryStoreImpl) Close() error {
	if hs.db == nil {
		return nil
	}
	return hs.db.Close()
}

// migrationDir returns the embedded migration directory of a SQL backend.
func migrationDir(backend schema.DatabaseBackend) (string, error) {
	switch backend {
	case schema.SQLiteBackend, schema.MySQLBackend:
		return path.Join("migrations", string(backend)), nil
	case schema.PostgreSQLBackend:
		return path.Join("migrations", "postgres"), nil
	default:
		return "", fmt.Errorf("migrations are not supported for backend %q", backend)
	}
}
