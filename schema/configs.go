package schema

import "time"

// Default values for the engine configuration.
const (
	DefaultGracePeriodMinutes     = 10
	DefaultRequiredPercentage     = 0.75
	DefaultWatchCutoff            = 0.3
	DefaultAtRiskCutoff           = 0.7
	DefaultConfidenceFloor        = 0.5
	DefaultPresenceThreshold      = 0.6
	DefaultUncertainLogConfidence = 0.5
	DefaultSessionLeadMinutes     = 15
)

// SessionWindow is one scheduled class meeting.
type SessionWindow struct {
	ID    string    `json:"id" validate:"required"`
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required,gtfield=Start"`
}

// RiskCutoffs maps a risk score to a label: below Watch is safe, below AtRisk is watch,
// anything else is at risk.
type RiskCutoffs struct {
	Watch  float64 `json:"watch" validate:"gte=0,lt=1"`
	AtRisk float64 `json:"at_risk" validate:"gtfield=Watch,lte=1"`
}

// ExcusedPair marks one student as excused from one session.
type ExcusedPair struct {
	StudentID string `json:"student_id" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
}

// Carryover holds attendance counted before the current event window.
type Carryover struct {
	Present int `json:"present" validate:"gte=0"`
	Absent  int `json:"absent" validate:"gte=0"`
}

// ModelWeights are the coefficients of the rule model.
type ModelWeights struct {
	Bias         float64                `json:"bias"`
	Coefficients map[FeatureKey]float64 `json:"coefficients"`
}

// DefaultModelWeights returns the built-in rule model coefficients.
func DefaultModelWeights() ModelWeights {
	return ModelWeights{Bias: DefaultModelBias, Coefficients: GetDefaultWeights()}
}

// EngineConfig is the immutable configuration of one evaluation.
// It is passed by value into every call and never held globally.
type EngineConfig struct {
	GracePeriodMinutes     int                  `json:"grace_period_minutes" validate:"gte=0"`
	RequiredPercentage     float64              `json:"required_percentage" validate:"gte=0,lte=1"`
	TrendWindowSessions    int                  `json:"trend_window_sessions" validate:"gte=0"` // 0 = final quarter of the term
	RiskCutoffs            RiskCutoffs          `json:"risk_cutoffs"`
	ConfidenceFloor        float64              `json:"confidence_floor" validate:"gte=0,lte=1"`
	PresenceThreshold      float64              `json:"presence_threshold" validate:"gte=0,lte=1"`
	UncertainLogConfidence float64              `json:"uncertain_log_confidence" validate:"gte=0,lte=1"`
	SessionLeadMinutes     int                  `json:"session_lead_minutes" validate:"gte=0"`
	PlannedSessions        int                  `json:"planned_sessions" validate:"gte=0"` // 0 = number of sessions
	Sessions               []SessionWindow      `json:"sessions" validate:"required,min=1,dive"`
	ExcusedOverrides       []ExcusedPair        `json:"excused_overrides" validate:"dive"`
	Roster                 []string             `json:"roster" validate:"dive,required"`
	Carryover              map[string]Carryover `json:"carryover" validate:"dive"`
	Weights                *ModelWeights        `json:"weights,omitempty"` // nil = DefaultModelWeights
}

// DefaultEngineConfig returns a configuration with every tunable at its default.
// Sessions must still be supplied by the caller.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		GracePeriodMinutes:     DefaultGracePeriodMinutes,
		RequiredPercentage:     DefaultRequiredPercentage,
		RiskCutoffs:            RiskCutoffs{Watch: DefaultWatchCutoff, AtRisk: DefaultAtRiskCutoff},
		ConfidenceFloor:        DefaultConfidenceFloor,
		PresenceThreshold:      DefaultPresenceThreshold,
		UncertainLogConfidence: DefaultUncertainLogConfidence,
		SessionLeadMinutes:     DefaultSessionLeadMinutes,
	}
}

// EffectivePlannedSessions returns the planned session count of the term.
func (c EngineConfig) EffectivePlannedSessions() int {
	if c.PlannedSessions > 0 {
		return c.PlannedSessions
	}
	return len(c.Sessions)
}

// EffectiveTrendWindow returns the trend window, defaulting to the final quarter
// of the planned term with a minimum of one session.
func (c EngineConfig) EffectiveTrendWindow() int {
	if c.TrendWindowSessions > 0 {
		return c.TrendWindowSessions
	}
	return max(1, (c.EffectivePlannedSessions()+3)/4)
}

// EffectiveWeights returns the configured weights or the defaults.
func (c EngineConfig) EffectiveWeights() ModelWeights {
	if c.Weights == nil {
		return DefaultModelWeights()
	}
	return *c.Weights
}

// IsExcused reports whether the pair is excused by configuration.
func (c EngineConfig) IsExcused(studentID, sessionID string) bool {
	for _, p := range c.ExcusedOverrides {
		if p.StudentID == studentID && p.SessionID == sessionID {
			return true
		}
	}
	return false
}
