package contract

import (
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strings"

	"github.com/attendrisk/attendrisk/schema"
	"github.com/rs/zerolog"
)

// Default values for configuration.
const (
	DefaultResultLimit = 1000
	MaxResultLimit     = 100000
	DefaultPrecision   = 2
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// SessionRawInput holds one session window from the YAML config file.
type SessionRawInput struct {
	ID    string `mapstructure:"id"`
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// ExcusedRawInput holds one excused (student, session) pair from the YAML config file.
type ExcusedRawInput struct {
	Student string `mapstructure:"student"`
	Session string `mapstructure:"session"`
}

// CarryoverRawInput holds attendance counted before the event window.
// It is a list rather than a map because viper lowercases map keys.
type CarryoverRawInput struct {
	Student string `mapstructure:"student"`
	Present int    `mapstructure:"present"`
	Absent  int    `mapstructure:"absent"`
}

// WeightsRawInput holds custom rule model weights. Use float64 pointers for optional fields.
type WeightsRawInput struct {
	Bias              *float64 `mapstructure:"bias"`
	Percentage        *float64 `mapstructure:"percentage"`
	TrendSlope        *float64 `mapstructure:"trend_slope"`
	LateRatio         *float64 `mapstructure:"late_ratio"`
	SessionsRemaining *float64 `mapstructure:"sessions_remaining"`
	MarginToThreshold *float64 `mapstructure:"margin_to_threshold"`
	Volatility        *float64 `mapstructure:"volatility"`
}

// CutoffsRawInput holds the risk label cutoffs.
type CutoffsRawInput struct {
	Watch  float64 `mapstructure:"watch"`
	AtRisk float64 `mapstructure:"at-risk"`
}

// Config holds the runtime configuration for an evaluation.
// This struct remains the "final, validated" config.
type Config struct {
	LogsPath       string
	DetectionsPath string

	// Engine is handed to the engine by value. It is validated by the engine itself.
	Engine schema.EngineConfig

	Workers     int
	ResultLimit int
	Precision   int
	Output      schema.OutputMode
	OutputFile  string
	Detail      bool
	Explain     bool
	Width       int // Terminal width override (0 = auto-detect)
	UseColors   bool
	MinLabel    schema.RiskLabel
	MaxAtRisk   int // check command: at_risk students tolerated (-1 = no limit)

	HistoryBackend   schema.DatabaseBackend
	HistoryDBConnect string // Please use env var as this is plaintext

	MetricsFile string
	LogLevel    zerolog.Level

	ExportFile     string
	ExportBucket   string
	ExportRegion   string
	ExportEndpoint string
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Fields from rootCmd.PersistentFlags() ---
	Logs             string `mapstructure:"logs"`
	Detections       string `mapstructure:"detections"`
	OutputFile       string `mapstructure:"output-file"`
	Limit            int    `mapstructure:"limit"`
	Workers          int    `mapstructure:"workers"`
	Precision        int    `mapstructure:"precision"`
	Output           string `mapstructure:"output"`
	Detail           bool   `mapstructure:"detail"`
	Explain          bool   `mapstructure:"explain"`
	Width            int    `mapstructure:"width"`
	Color            string `mapstructure:"color"`
	MinLabel         string `mapstructure:"min-label"`
	HistoryBackend   string `mapstructure:"history-backend"`
	HistoryDBConnect string `mapstructure:"history-db-connect"`
	MetricsFile      string `mapstructure:"metrics-file"`
	LogLevel         string `mapstructure:"log-level"`

	// --- Fields from checkCmd.Flags() ---
	MaxAtRisk int `mapstructure:"max-at-risk"`

	// --- Fields from historyExportCmd.Flags() ---
	ExportFile     string `mapstructure:"export-file"`
	ExportBucket   string `mapstructure:"export-bucket"`
	ExportRegion   string `mapstructure:"export-region"`
	ExportEndpoint string `mapstructure:"export-endpoint"`

	// --- Engine settings (flags for scalars, config file for the rest) ---
	GracePeriodMinutes     int                 `mapstructure:"grace-period-minutes"`
	RequiredPercentage     float64             `mapstructure:"required-percentage"`
	TrendWindowSessions    int                 `mapstructure:"trend-window-sessions"`
	ConfidenceFloor        float64             `mapstructure:"confidence-floor"`
	PresenceThreshold      float64             `mapstructure:"presence-threshold"`
	UncertainLogConfidence float64             `mapstructure:"uncertain-log-confidence"`
	SessionLeadMinutes     int                 `mapstructure:"session-lead-minutes"`
	PlannedSessions        int                 `mapstructure:"planned-sessions"`
	RiskCutoffs            CutoffsRawInput     `mapstructure:"risk-cutoffs"`
	Sessions               []SessionRawInput   `mapstructure:"sessions"`
	Excused                []ExcusedRawInput   `mapstructure:"excused"`
	Roster                 []string            `mapstructure:"roster"`
	Carryover              []CarryoverRawInput `mapstructure:"carryover"`
	Weights                *WeightsRawInput    `mapstructure:"weights"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Engine.Sessions = slices.Clone(c.Engine.Sessions)
	clone.Engine.ExcusedOverrides = slices.Clone(c.Engine.ExcusedOverrides)
	clone.Engine.Roster = slices.Clone(c.Engine.Roster)
	if c.Engine.Carryover != nil {
		clone.Engine.Carryover = maps.Clone(c.Engine.Carryover)
	}
	if c.Engine.Weights != nil {
		w := *c.Engine.Weights
		w.Coefficients = maps.Clone(c.Engine.Weights.Coefficients)
		clone.Engine.Weights = &w
	}
	return &clone
}

// ProcessAndValidate performs all parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := validateBackendConfigs(cfg, input); err != nil {
		return err
	}
	if err := processEngineConfig(cfg, input); err != nil {
		return err
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("history-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("MySQL connection string must contain '@tcp(' for host:port specification")
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("MySQL connection string must contain '/' followed by database name")
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("history-db-connect is required when using %s backend", backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'host=' parameter")
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("PostgreSQL connection string must contain 'dbname=' parameter")
		}
	}
	return nil
}

// validateBackendConfigs validates the history backend configuration.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	cfg.HistoryBackend = schema.DatabaseBackend(strings.ToLower(input.HistoryBackend))
	if cfg.HistoryBackend == "" {
		cfg.HistoryBackend = schema.SQLiteBackend
	}
	if _, ok := schema.ValidDatabaseBackends[cfg.HistoryBackend]; !ok {
		return fmt.Errorf("invalid history backend '%s'. must be sqlite, mysql, postgresql, none", input.HistoryBackend)
	}
	cfg.HistoryDBConnect = input.HistoryDBConnect
	return ValidateDatabaseConnectionString(cfg.HistoryBackend, cfg.HistoryDBConnect)
}

// validateSimpleInputs processes and validates all runtime (non-engine) fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	// --- 0. Transfer simple non-validated fields from input -> cfg ---
	cfg.LogsPath = strings.TrimSpace(input.Logs)
	cfg.DetectionsPath = strings.TrimSpace(input.Detections)
	cfg.OutputFile = input.OutputFile
	cfg.Detail = input.Detail
	cfg.Explain = input.Explain
	cfg.Width = input.Width
	cfg.MetricsFile = input.MetricsFile
	cfg.MaxAtRisk = input.MaxAtRisk
	cfg.ExportFile = input.ExportFile
	cfg.ExportBucket = input.ExportBucket
	cfg.ExportRegion = input.ExportRegion
	cfg.ExportEndpoint = input.ExportEndpoint

	// Parse color flag
	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	cfg.UseColors = colors

	// --- 1. ResultLimit Validation ---
	if input.Limit <= 0 || input.Limit > MaxResultLimit {
		return fmt.Errorf("limit must be greater than 0 and cannot exceed %d (received %d)", MaxResultLimit, input.Limit)
	}
	cfg.ResultLimit = input.Limit

	// --- 2. Workers Validation ---
	if input.Workers <= 0 {
		return fmt.Errorf("workers must be greater than 0 (received %d)", input.Workers)
	}
	cfg.Workers = input.Workers

	// --- 3. Precision and Output Validation ---
	if input.Precision < 1 || input.Precision > 4 {
		return fmt.Errorf("precision must be between 1 and 4 (received %d)", input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if _, ok := schema.ValidOutputModes[cfg.Output]; !ok {
		return fmt.Errorf("invalid output format '%s'. must be text, csv, json, parquet", input.Output)
	}

	// --- 4. Label filter ---
	cfg.MinLabel = schema.RiskLabel(strings.ToLower(input.MinLabel))
	if cfg.MinLabel == "" {
		cfg.MinLabel = schema.SafeLabel
	}
	if !slices.Contains(schema.AllRiskLabels, cfg.MinLabel) {
		return fmt.Errorf("invalid min-label '%s'. must be safe, watch, at_risk", input.MinLabel)
	}

	// --- 5. Log level ---
	level, err := zerolog.ParseLevel(strings.ToLower(input.LogLevel))
	if err != nil {
		return fmt.Errorf("invalid --log-level value: %w", err)
	}
	cfg.LogLevel = level

	return nil
}

// processEngineConfig converts the raw engine settings into a schema.EngineConfig.
// Only parsing happens here; range checks belong to the engine.
func processEngineConfig(cfg *Config, input *ConfigRawInput) error {
	engine := schema.EngineConfig{
		GracePeriodMinutes:     input.GracePeriodMinutes,
		RequiredPercentage:     input.RequiredPercentage,
		TrendWindowSessions:    input.TrendWindowSessions,
		RiskCutoffs:            schema.RiskCutoffs{Watch: input.RiskCutoffs.Watch, AtRisk: input.RiskCutoffs.AtRisk},
		ConfidenceFloor:        input.ConfidenceFloor,
		PresenceThreshold:      input.PresenceThreshold,
		UncertainLogConfidence: input.UncertainLogConfidence,
		SessionLeadMinutes:     input.SessionLeadMinutes,
		PlannedSessions:        input.PlannedSessions,
	}

	sessions, err := ProcessSessionsRawInput(input.Sessions)
	if err != nil {
		return err
	}
	engine.Sessions = sessions

	for _, e := range input.Excused {
		engine.ExcusedOverrides = append(engine.ExcusedOverrides, schema.ExcusedPair{
			StudentID: strings.TrimSpace(e.Student),
			SessionID: strings.TrimSpace(e.Session),
		})
	}

	for _, id := range input.Roster {
		engine.Roster = append(engine.Roster, strings.TrimSpace(id))
	}

	if len(input.Carryover) > 0 {
		engine.Carryover = make(map[string]schema.Carryover, len(input.Carryover))
		for _, c := range input.Carryover {
			id := strings.TrimSpace(c.Student)
			if id == "" {
				return fmt.Errorf("carryover entry is missing a student")
			}
			if _, dup := engine.Carryover[id]; dup {
				return fmt.Errorf("carryover for student %s is listed twice", id)
			}
			engine.Carryover[id] = schema.Carryover{Present: c.Present, Absent: c.Absent}
		}
	}

	if input.Weights != nil {
		w := ProcessWeightsRawInput(*input.Weights)
		engine.Weights = &w
	}

	cfg.Engine = engine
	return nil
}

// ProcessSessionsRawInput parses session windows from the config file.
func ProcessSessionsRawInput(raw []SessionRawInput) ([]schema.SessionWindow, error) {
	sessions := make([]schema.SessionWindow, 0, len(raw))
	for i, s := range raw {
		start, err := schema.ParseTimestamp(s.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid start of session %d (%s): %w", i, s.ID, err)
		}
		end, err := schema.ParseTimestamp(s.End)
		if err != nil {
			return nil, fmt.Errorf("invalid end of session %d (%s): %w", i, s.ID, err)
		}
		sessions = append(sessions, schema.SessionWindow{ID: strings.TrimSpace(s.ID), Start: start, End: end})
	}
	return sessions, nil
}

// ProcessWeightsRawInput overlays the provided weights on the defaults.
func ProcessWeightsRawInput(raw WeightsRawInput) schema.ModelWeights {
	w := schema.DefaultModelWeights()
	if raw.Bias != nil {
		w.Bias = *raw.Bias
	}
	overrides := map[schema.FeatureKey]*float64{
		schema.FeaturePercentage:        raw.Percentage,
		schema.FeatureTrendSlope:        raw.TrendSlope,
		schema.FeatureLateRatio:         raw.LateRatio,
		schema.FeatureSessionsRemaining: raw.SessionsRemaining,
		schema.FeatureMarginToThreshold: raw.MarginToThreshold,
		schema.FeatureVolatility:        raw.Volatility,
	}
	for key, v := range overrides {
		if v != nil {
			w.Coefficients[key] = *v
		}
	}
	return w
}
