package core

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/attendrisk/attendrisk/internal/iostore"
	"github.com/attendrisk/attendrisk/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const coreTestLogs = `student_id,session_id,timestamp,status_hint,uncertain
alice,s1,2024-01-08T09:01:00Z,,
alice,s2,2024-01-09T09:25:00Z,,
alice,s3,2024-01-10T09:00:00Z,,
alice,s4,2024-01-11T09:00:00Z,,
bob,s1,2024-01-08T09:00:00Z,absent,
bob,s2,2024-01-09T09:00:00Z,,yes
bob,s9,2024-01-09T09:00:00Z,,
`

// newCoreConfig writes the log fixture and returns a config over four sessions.
func newCoreConfig(t *testing.T) *contract.Config {
	t.Helper()
	dir := t.TempDir()
	logs := filepath.Join(dir, "logs.csv")
	require.NoError(t, os.WriteFile(logs, []byte(coreTestLogs), 0o600))
	return &contract.Config{
		LogsPath:    logs,
		Engine:      testConfig(4, 8),
		Workers:     2,
		ResultLimit: 10,
		Precision:   2,
		Output:      schema.JSONOut,
		OutputFile:  filepath.Join(dir, "out.json"),
		MinLabel:    schema.SafeLabel,
		LogLevel:    zerolog.Disabled,
	}
}

func TestGetEvaluationResults(t *testing.T) {
	cfg := newCoreConfig(t)
	cfg.MetricsFile = filepath.Join(t.TempDir(), "attendrisk.prom")

	result, err := GetEvaluationResults(WithSuppressHeader(context.Background()), cfg, nil)
	require.NoError(t, err)
	require.Len(t, result.Reports, 2)
	assert.Equal(t, "bob", result.Reports[0].StudentID)
	assert.Equal(t, 1, result.Summary.SkippedEventCount)

	alice, ok := result.FindReport("alice")
	require.True(t, ok)
	assert.Equal(t, 4, alice.Summary.AttendedSessions)
	assert.Equal(t, 1, alice.Summary.LateCount)

	// bob's uncertain log falls below the presence threshold
	bob, ok := result.FindReport("bob")
	require.True(t, ok)
	assert.Equal(t, 0, bob.Summary.AttendedSessions)

	metrics, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "attendrisk_batches_total 1")
}

func TestGetEvaluationResults_RecordsHistory(t *testing.T) {
	cfg := newCoreConfig(t)
	store := &iostore.MockHistoryStore{}
	mgr := &iostore.MockHistoryManager{}
	mgr.On("GetHistoryStore").Return(store)
	store.On("BeginRun", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(params map[string]any) bool {
		return params["sessions"] == 4 && params["feature_version"] == schema.FeatureVersion
	})).Return(int64(7), nil)
	store.On("RecordReport", int64(7), mock.Anything, mock.Anything).Return(nil).Twice()
	store.On("EndRun", int64(7), mock.Anything, mock.MatchedBy(func(s schema.BatchSummary) bool {
		return s.StudentCount == 2 && s.SkippedEventCount == 1
	})).Return(nil)

	_, err := GetEvaluationResults(WithSuppressHeader(context.Background()), cfg, mgr)
	require.NoError(t, err)
	store.AssertExpectations(t)
	mgr.AssertExpectations(t)
}

func TestGetEvaluationResults_HistoryFailureIsNotFatal(t *testing.T) {
	cfg := newCoreConfig(t)
	store := &iostore.MockHistoryStore{}
	mgr := &iostore.MockHistoryManager{}
	mgr.On("GetHistoryStore").Return(store)
	store.On("BeginRun", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), assert.AnError)

	result, err := GetEvaluationResults(WithSuppressHeader(context.Background()), cfg, mgr)
	require.NoError(t, err)
	assert.Len(t, result.Reports, 2)
	store.AssertNotCalled(t, "RecordReport", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "EndRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetEvaluationResults_Errors(t *testing.T) {
	t.Run("configuration before input", func(t *testing.T) {
		cfg := newCoreConfig(t)
		cfg.LogsPath = filepath.Join(t.TempDir(), "missing.csv")
		cfg.Engine.Sessions = nil
		_, err := GetEvaluationResults(WithSuppressHeader(context.Background()), cfg, nil)
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("missing input file", func(t *testing.T) {
		cfg := newCoreConfig(t)
		cfg.LogsPath = filepath.Join(t.TempDir(), "missing.csv")
		_, err := GetEvaluationResults(WithSuppressHeader(context.Background()), cfg, nil)
		assert.ErrorContains(t, err, "failed to open")
	})

	t.Run("cancelled", func(t *testing.T) {
		cfg := newCoreConfig(t)
		ctx, cancel := context.WithCancel(WithSuppressHeader(context.Background()))
		cancel()
		result, err := GetEvaluationResults(ctx, cfg, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorContains(t, err, "evaluation stopped")
		require.NotNil(t, result)
		assert.True(t, result.Summary.Cancelled)
		assert.Equal(t, result.Summary.StudentCount, result.Summary.UnevaluatedCount)
		assert.Equal(t, 1, result.Summary.SkippedEventCount)
	})
}

func TestSelectReports(t *testing.T) {
	reports := []schema.RiskReport{
		{StudentID: "a", RiskScore: 0.1, RiskLabel: schema.SafeLabel},
		{StudentID: "b", RiskScore: 0.5, RiskLabel: schema.WatchLabel},
		{StudentID: "c", RiskScore: 0.9, RiskLabel: schema.AtRiskLabel},
		{StudentID: "d", RiskScore: 0.6, RiskLabel: schema.WatchLabel},
	}

	got := SelectReports(reports, &contract.Config{MinLabel: schema.WatchLabel, ResultLimit: 2})
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].StudentID)
	assert.Equal(t, "d", got[1].StudentID)
}

func TestExecuteEvaluate_JSON(t *testing.T) {
	cfg := newCoreConfig(t)

	err := ExecuteEvaluate(WithSuppressHeader(context.Background()), cfg, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	var out struct {
		Reports []schema.RiskReport `json:"reports"`
		Summary schema.BatchSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Reports, 2)
	assert.Equal(t, "bob", out.Reports[0].StudentID)
	assert.Equal(t, 2, out.Summary.StudentCount)
}

func TestExecuteEvaluate_CancelledWritesPartialResult(t *testing.T) {
	cfg := newCoreConfig(t)
	ctx, cancel := context.WithCancel(WithSuppressHeader(context.Background()))
	cancel()

	err := ExecuteEvaluate(ctx, cfg, nil)
	require.ErrorIs(t, err, context.Canceled)

	raw, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	var out struct {
		Reports []schema.RiskReport `json:"reports"`
		Summary schema.BatchSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Empty(t, out.Reports)
	assert.True(t, out.Summary.Cancelled)
	assert.Equal(t, 2, out.Summary.UnevaluatedCount)
}

func TestExecuteCheck_CancelledFails(t *testing.T) {
	cfg := newCoreConfig(t)
	cfg.MaxAtRisk = -1
	ctx, cancel := context.WithCancel(WithSuppressHeader(context.Background()))
	cancel()

	err := ExecuteCheck(ctx, cfg, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteModel_CSV(t *testing.T) {
	cfg := newCoreConfig(t)
	cfg.Output = schema.CSVOut
	cfg.OutputFile = filepath.Join(t.TempDir(), "model.csv")

	require.NoError(t, ExecuteModel(context.Background(), cfg, nil))
	raw, err := os.ReadFile(cfg.OutputFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, schema.FeatureCount+2)
	assert.True(t, strings.HasPrefix(lines[0], "feature,weight,description"))
}

func TestExecuteCheck(t *testing.T) {
	cfg := newCoreConfig(t)
	ctx := WithSuppressHeader(context.Background())

	cfg.MaxAtRisk = -1
	assert.NoError(t, ExecuteCheck(ctx, cfg, nil))

	cfg.MaxAtRisk = 0
	err := ExecuteCheck(ctx, cfg, nil)
	assert.ErrorContains(t, err, "1 student(s) at risk, limit is 0")
}
