// Package core has the attendance engine and the executors behind each CLI command.
package core

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/attendrisk/attendrisk/core/algo"
	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/internal/ingest"
	"github.com/attendrisk/attendrisk/internal/metrics"
	"github.com/attendrisk/attendrisk/internal/outwriter"
	"github.com/attendrisk/attendrisk/schema"
	"github.com/google/uuid"
)

// ExecutorFunc defines the function signature for executing different commands.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.HistoryManager) error

// ExecuteEvaluate evaluates the configured term and prints the ranked reports.
// It serves as the main entry point for the 'evaluate' command.
func ExecuteEvaluate(ctx context.Context, cfg *contract.Config, mgr contract.HistoryManager) error {
	start := time.Now()
	result, err := GetEvaluationResults(ctx, cfg, mgr)
	if result == nil {
		return err
	}
	if err != nil {
		contract.LogWarn(fmt.Sprintf("Showing partial results, %d student(s) not evaluated", result.Summary.UnevaluatedCount), err)
	}
	reports := SelectReports(result.Reports, cfg)
	if werr := outwriter.WriteReportResults(reports, result.Summary, cfg, time.Since(start)); werr != nil {
		return werr
	}
	return err
}

// ExecuteModel displays the active risk model. It does not read any input.
func ExecuteModel(_ context.Context, cfg *contract.Config, _ contract.HistoryManager) error {
	return outwriter.WriteModelDefinition(BuildModelRenderModel(cfg.Engine), cfg)
}

// GetEvaluationResults reads the configured inputs and evaluates them.
// The run is recorded in the history store when one is configured, and batch
// metrics are written when a metrics file is set. A cancelled evaluation returns
// the partial result together with the context error.
func GetEvaluationResults(ctx context.Context, cfg *contract.Config, mgr contract.HistoryManager) (*schema.BatchResult, error) {
	if !shouldSuppressHeader(ctx) {
		outwriter.LogEvaluationHeader(cfg)
	}

	// Fail on configuration before touching the inputs
	if err := ValidateConfig(cfg.Engine); err != nil {
		return nil, err
	}
	data, err := ingest.ReadTermData(cfg.LogsPath, cfg.DetectionsPath)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithWorkers(cfg.Workers),
		WithLogger(contract.NewLogger(os.Stderr, cfg.LogLevel)),
	}
	var recorder *metrics.Recorder
	if cfg.MetricsFile != "" {
		recorder = metrics.NewRecorder()
		opts = append(opts, WithObserver(recorder))
	}

	ctx = beginHistory(ctx, cfg, mgr)
	result, err := NewEngine(opts...).Evaluate(ctx, data, cfg.Engine)
	if result != nil {
		finishHistory(ctx, mgr, result)
	}
	if recorder != nil {
		if werr := recorder.WriteTextfile(cfg.MetricsFile); werr != nil {
			contract.LogWarn("Failed to write metrics file", werr)
		}
	}
	if err != nil {
		return result, fmt.Errorf("evaluation stopped: %w", err)
	}
	return result, nil
}

// SelectReports applies the label filter and the result limit to ranked reports.
func SelectReports(reports []schema.RiskReport, cfg *contract.Config) []schema.RiskReport {
	filtered := algo.FilterByLabel(reports, cfg.MinLabel)
	return algo.RankReports(filtered, cfg.ResultLimit)
}

// beginHistory opens a history run and stores its ID in the context.
// Tracking failures are reported and never stop the evaluation.
func beginHistory(ctx context.Context, cfg *contract.Config, mgr contract.HistoryManager) context.Context {
	if mgr == nil {
		return ctx
	}
	store := mgr.GetHistoryStore()
	if store == nil {
		return ctx
	}
	configParams := map[string]any{
		"logs":                 cfg.LogsPath,
		"detections":           cfg.DetectionsPath,
		"workers":              cfg.Workers,
		"sessions":             len(cfg.Engine.Sessions),
		"planned_sessions":     cfg.Engine.EffectivePlannedSessions(),
		"required_percentage":  cfg.Engine.RequiredPercentage,
		"grace_period_minutes": cfg.Engine.GracePeriodMinutes,
		"feature_version":      schema.FeatureVersion,
	}
	runID, err := store.BeginRun(time.Now(), uuid.NewString(), configParams)
	if err != nil {
		contract.LogWarn("History tracking initialization failed", err)
		return ctx
	}
	return withRunID(ctx, runID)
}

// finishHistory stores every report and closes the run opened by beginHistory.
func finishHistory(ctx context.Context, mgr contract.HistoryManager, result *schema.BatchResult) {
	runID, ok := getRunID(ctx)
	if !ok || runID <= 0 {
		return
	}
	store := mgr.GetHistoryStore()
	now := time.Now()
	for _, report := range result.Reports {
		if err := store.RecordReport(runID, now, report); err != nil {
			contract.LogWarn(fmt.Sprintf("Failed to record report for %s", report.StudentID), err)
		}
	}
	if err := store.EndRun(runID, now, result.Summary); err != nil {
		contract.LogWarn("Failed to finalize history tracking", err)
	}
}
