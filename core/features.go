package core

import (
	"math"

	"github.com/attendrisk/attendrisk/schema"
)

// FeatureBuilder builds the risk feature vector of one student.
// Every value lands in [-1,1] so coefficients carry across courses of any length.
type FeatureBuilder struct {
	summary  schema.TermSummary
	cfg      schema.EngineConfig
	features schema.RiskFeatures
}

// NewFeatureBuilder is the starting point for building risk features.
func NewFeatureBuilder(summary schema.TermSummary, cfg schema.EngineConfig) *FeatureBuilder {
	return &FeatureBuilder{
		summary: summary,
		cfg:     cfg,
		features: schema.RiskFeatures{
			StudentID:          summary.StudentID,
			Version:            schema.FeatureVersion,
			TrendWindow:        summary.TrendWindow,
			RequiredPercentage: cfg.RequiredPercentage,
			PlannedSessions:    cfg.EffectivePlannedSessions(),
		},
	}
}

func (b *FeatureBuilder) set(key schema.FeatureKey, v float64) {
	for i, k := range schema.FeatureOrder {
		if k == key {
			b.features.Values[i] = v
			return
		}
	}
}

// WithAttendance sets the percentage and the margin to the required percentage.
func (b *FeatureBuilder) WithAttendance() *FeatureBuilder {
	pct := clamp(b.summary.CurrentPercentage, 0, 1)
	b.set(schema.FeaturePercentage, pct)
	b.set(schema.FeatureMarginToThreshold, clamp(pct-b.cfg.RequiredPercentage, -1, 1))
	return b
}

// WithTrend sets the trend slope (trailing minus overall) and the volatility of the
// trailing window. Volatility is twice the population standard deviation of the
// attended indicators, so an alternating pattern scores 1.
func (b *FeatureBuilder) WithTrend() *FeatureBuilder {
	b.set(schema.FeatureTrendSlope, clamp(b.summary.TrailingTrend-b.summary.CurrentPercentage, -1, 1))
	b.set(schema.FeatureVolatility, clamp(2*stddev(b.summary.RecentIndicators), 0, 1))
	return b
}

// WithLateness sets the share of attended sessions that were late.
func (b *FeatureBuilder) WithLateness() *FeatureBuilder {
	ratio := 0.0
	if b.summary.AttendedSessions > 0 {
		ratio = float64(b.summary.LateCount) / float64(b.summary.AttendedSessions)
	}
	b.set(schema.FeatureLateRatio, clamp(ratio, 0, 1))
	return b
}

// WithSchedule sets the share of planned sessions not yet held.
func (b *FeatureBuilder) WithSchedule() *FeatureBuilder {
	planned := b.cfg.EffectivePlannedSessions()
	remaining := 0.0
	if planned > 0 {
		remaining = float64(max(0, planned-len(b.cfg.Sessions))) / float64(planned)
	}
	b.set(schema.FeatureSessionsRemaining, clamp(remaining, 0, 1))
	return b
}

// Build returns the feature vector.
func (b *FeatureBuilder) Build() schema.RiskFeatures {
	return b.features
}

// BuildFeatures derives the full feature vector from a summary.
func BuildFeatures(summary schema.TermSummary, cfg schema.EngineConfig) schema.RiskFeatures {
	return NewFeatureBuilder(summary, cfg).
		WithAttendance().
		WithTrend().
		WithLateness().
		WithSchedule().
		Build()
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

// stddev returns the population standard deviation, or 0 for fewer than two values.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
