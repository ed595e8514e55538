package core

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/attendrisk/attendrisk/core/algo"
	"github.com/attendrisk/attendrisk/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type importancePredictor struct {
	score       float64
	importances map[schema.FeatureKey]float64
}

func (p importancePredictor) Score(schema.RiskFeatures) (float64, error) {
	return p.score, nil
}

func (p importancePredictor) FeatureImportances() map[schema.FeatureKey]float64 {
	return p.importances
}

func TestPredict(t *testing.T) {
	rule := algo.NewRuleModel(schema.DefaultModelWeights())
	features := BuildFeatures(slippingSummary(), testConfig(4, 8))
	ruleScore, _ := rule.Score(features)

	tests := []struct {
		name      string
		predictor Predictor
		score     float64
		fallback  bool
	}{
		{name: "rule model", predictor: nil, score: ruleScore},
		{name: "injected", predictor: PredictorFunc(func(schema.RiskFeatures) (float64, error) { return 0.42, nil }), score: 0.42},
		{name: "error", predictor: PredictorFunc(func(schema.RiskFeatures) (float64, error) { return 0, errors.New("timeout") }), score: ruleScore, fallback: true},
		{name: "panic", predictor: PredictorFunc(func(schema.RiskFeatures) (float64, error) { panic("boom") }), score: ruleScore, fallback: true},
		{name: "above one", predictor: PredictorFunc(func(schema.RiskFeatures) (float64, error) { return 1.2, nil }), score: ruleScore, fallback: true},
		{name: "NaN", predictor: PredictorFunc(func(schema.RiskFeatures) (float64, error) { return math.NaN(), nil }), score: ruleScore, fallback: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := predict(tt.predictor, rule, features)
			assert.InDelta(t, tt.score, pred.score, 1e-12)
			assert.Equal(t, tt.fallback, pred.fallback)
			assert.Equal(t, rule.FeatureImportances(), pred.attribution)
			if tt.fallback {
				var unavailable *PredictorUnavailableError
				require.ErrorAs(t, pred.err, &unavailable)
				assert.Equal(t, "alice", unavailable.StudentID)
				assert.Error(t, unavailable.Unwrap())
			} else {
				assert.NoError(t, pred.err)
			}
		})
	}
}

func TestPredict_ImportanceProvider(t *testing.T) {
	rule := algo.NewRuleModel(schema.DefaultModelWeights())
	features := BuildFeatures(slippingSummary(), testConfig(4, 8))
	imp := map[schema.FeatureKey]float64{schema.FeatureLateRatio: 3}

	pred := predict(importancePredictor{score: 0.6, importances: imp}, rule, features)
	assert.InDelta(t, 0.6, pred.score, 1e-12)
	assert.Equal(t, imp, pred.attribution)

	// Empty importances keep the rule coefficients
	pred = predict(importancePredictor{score: 0.6}, rule, features)
	assert.Equal(t, rule.FeatureImportances(), pred.attribution)
}

func TestSerialized(t *testing.T) {
	var active, peak atomic.Int32
	inner := PredictorFunc(func(schema.RiskFeatures) (float64, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		active.Add(-1)
		return 0.5, nil
	})
	p := Serialized(inner)
	_, isProvider := p.(ImportanceProvider)
	assert.False(t, isProvider)

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			score, err := p.Score(schema.RiskFeatures{})
			assert.NoError(t, err)
			assert.InDelta(t, 0.5, score, 1e-12)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())

	wrapped := Serialized(importancePredictor{importances: map[schema.FeatureKey]float64{schema.FeatureVolatility: 1}})
	ip, ok := wrapped.(ImportanceProvider)
	require.True(t, ok)
	assert.InDelta(t, 1.0, ip.FeatureImportances()[schema.FeatureVolatility], 1e-12)
}
