package contract

import (
	"testing"
	"time"

	"github.com/attendrisk/attendrisk/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

// validInput returns a raw input as viper would produce it from defaults.
func validInput() *ConfigRawInput {
	return &ConfigRawInput{
		Logs:                   "logs.csv",
		Limit:                  DefaultResultLimit,
		Workers:                4,
		Precision:              DefaultPrecision,
		Output:                 "text",
		Color:                  "yes",
		LogLevel:               "warn",
		HistoryBackend:         "sqlite",
		GracePeriodMinutes:     schema.DefaultGracePeriodMinutes,
		RequiredPercentage:     schema.DefaultRequiredPercentage,
		ConfidenceFloor:        schema.DefaultConfidenceFloor,
		PresenceThreshold:      schema.DefaultPresenceThreshold,
		UncertainLogConfidence: schema.DefaultUncertainLogConfidence,
		SessionLeadMinutes:     schema.DefaultSessionLeadMinutes,
		RiskCutoffs:            CutoffsRawInput{Watch: schema.DefaultWatchCutoff, AtRisk: schema.DefaultAtRiskCutoff},
		Sessions: []SessionRawInput{
			{ID: "s01", Start: "2026-09-01T09:00:00Z", End: "2026-09-01T10:00:00Z"},
			{ID: "s02", Start: "2026-09-08 09:00", End: "2026-09-08 10:00"},
		},
	}
}

func TestProcessAndValidate(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*ConfigRawInput)
		expectError string
	}{
		{name: "valid minimal config"},
		{name: "invalid limit", modify: func(in *ConfigRawInput) { in.Limit = 0 }, expectError: "limit must be greater than 0"},
		{name: "limit too large", modify: func(in *ConfigRawInput) { in.Limit = MaxResultLimit + 1 }, expectError: "cannot exceed"},
		{name: "invalid workers", modify: func(in *ConfigRawInput) { in.Workers = 0 }, expectError: "workers must be greater than 0"},
		{name: "invalid precision", modify: func(in *ConfigRawInput) { in.Precision = 9 }, expectError: "precision must be between"},
		{name: "invalid output", modify: func(in *ConfigRawInput) { in.Output = "pdf" }, expectError: "invalid output format"},
		{name: "invalid color", modify: func(in *ConfigRawInput) { in.Color = "sometimes" }, expectError: "invalid --color value"},
		{name: "invalid min label", modify: func(in *ConfigRawInput) { in.MinLabel = "doomed" }, expectError: "invalid min-label"},
		{name: "invalid log level", modify: func(in *ConfigRawInput) { in.LogLevel = "chatty" }, expectError: "invalid --log-level"},
		{name: "invalid backend", modify: func(in *ConfigRawInput) { in.HistoryBackend = "redis" }, expectError: "invalid history backend"},
		{
			name:        "mysql without connection string",
			modify:      func(in *ConfigRawInput) { in.HistoryBackend = "mysql" },
			expectError: "history-db-connect is required",
		},
		{
			name:        "bad session start",
			modify:      func(in *ConfigRawInput) { in.Sessions[0].Start = "first monday" },
			expectError: "invalid start of session 0",
		},
		{
			name: "duplicate carryover",
			modify: func(in *ConfigRawInput) {
				in.Carryover = []CarryoverRawInput{{Student: "a", Present: 1}, {Student: "a", Absent: 1}}
			},
			expectError: "listed twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			if tt.modify != nil {
				tt.modify(input)
			}
			cfg := &Config{}
			err := ProcessAndValidate(cfg, input)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestProcessAndValidateEngine(t *testing.T) {
	input := validInput()
	input.Excused = []ExcusedRawInput{{Student: " alice ", Session: "s02"}}
	input.Roster = []string{"alice", "bob"}
	input.Carryover = []CarryoverRawInput{{Student: "bob", Present: 5, Absent: 1}}
	input.PlannedSessions = 12

	cfg := &Config{}
	require.NoError(t, ProcessAndValidate(cfg, input))

	assert.Equal(t, schema.TextOut, cfg.Output)
	assert.Equal(t, schema.SQLiteBackend, cfg.HistoryBackend)
	assert.Equal(t, schema.SafeLabel, cfg.MinLabel)
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel)
	assert.True(t, cfg.UseColors)

	engine := cfg.Engine
	require.Len(t, engine.Sessions, 2)
	assert.Equal(t, time.Date(2026, 9, 8, 9, 0, 0, 0, time.UTC), engine.Sessions[1].Start)
	assert.Equal(t, []schema.ExcusedPair{{StudentID: "alice", SessionID: "s02"}}, engine.ExcusedOverrides)
	assert.Equal(t, schema.Carryover{Present: 5, Absent: 1}, engine.Carryover["bob"])
	assert.Equal(t, 12, engine.PlannedSessions)
	assert.Nil(t, engine.Weights)
}

func TestProcessWeightsRawInput(t *testing.T) {
	w := ProcessWeightsRawInput(WeightsRawInput{Bias: ptr(0.5), Volatility: ptr(3)})

	assert.InDelta(t, 0.5, w.Bias, 1e-9)
	assert.InDelta(t, 3.0, w.Coefficients[schema.FeatureVolatility], 1e-9)
	// Untouched coefficients keep their defaults.
	assert.Equal(t, schema.GetDefaultWeights()[schema.FeatureMarginToThreshold], w.Coefficients[schema.FeatureMarginToThreshold])
}

func TestValidateDatabaseConnectionString(t *testing.T) {
	tests := []struct {
		backend schema.DatabaseBackend
		conn    string
		wantErr bool
	}{
		{schema.SQLiteBackend, "", false},
		{schema.NoneBackend, "", false},
		{schema.MySQLBackend, "user:pass@tcp(localhost:3306)/attendrisk", false},
		{schema.MySQLBackend, "user:pass@localhost/attendrisk", true},
		{schema.MySQLBackend, "user:pass@tcp(localhost:3306)", true},
		{schema.PostgreSQLBackend, "host=localhost dbname=attendrisk", false},
		{schema.PostgreSQLBackend, "dbname=attendrisk", true},
		{schema.PostgreSQLBackend, "host=localhost", true},
	}
	for _, tt := range tests {
		err := ValidateDatabaseConnectionString(tt.backend, tt.conn)
		if tt.wantErr {
			assert.Error(t, err, "%s %q", tt.backend, tt.conn)
		} else {
			assert.NoError(t, err, "%s %q", tt.backend, tt.conn)
		}
	}
}

func TestConfigClone(t *testing.T) {
	input := validInput()
	input.Roster = []string{"alice"}
	input.Weights = &WeightsRawInput{Bias: ptr(2)}
	cfg := &Config{}
	require.NoError(t, ProcessAndValidate(cfg, input))

	clone := cfg.Clone()
	clone.Engine.Roster[0] = "mallory"
	clone.Engine.Sessions[0].ID = "changed"
	clone.Engine.Weights.Coefficients[schema.FeatureVolatility] = 99

	assert.Equal(t, "alice", cfg.Engine.Roster[0])
	assert.Equal(t, "s01", cfg.Engine.Sessions[0].ID)
	assert.NotEqual(t, 99.0, cfg.Engine.Weights.Coefficients[schema.FeatureVolatility])
}
