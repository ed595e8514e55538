package core

import (
	"testing"

	"github.com/attendrisk/attendrisk/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildModelRenderModel(t *testing.T) {
	cfg := testConfig(4, 8)
	model := BuildModelRenderModel(cfg)

	assert.Equal(t, schema.FeatureVersion, model.Version)
	assert.InDelta(t, schema.DefaultModelBias, model.Bias, 1e-12)
	assert.Equal(t, cfg.RiskCutoffs, model.Cutoffs)
	assert.InDelta(t, 0.75, model.Required, 1e-12)
	require.Len(t, model.Factors, schema.FeatureCount)
	for i, f := range model.Factors {
		assert.Equal(t, schema.FeatureOrder[i], f.Feature)
		assert.NotEmpty(t, f.Description)
	}
	assert.InDelta(t, -12.0, model.Factors[4].Weight, 1e-12)
	assert.Contains(t, model.Formula, "1.00 + -2.00*percentage + -4.00*trend_slope")
}

func TestBuildModelRenderModel_CustomWeights(t *testing.T) {
	cfg := testConfig(1, 0)
	cfg.Weights = &schema.ModelWeights{Bias: -0.5, Coefficients: map[schema.FeatureKey]float64{
		schema.FeatureLateRatio: 2,
	}}

	model := BuildModelRenderModel(cfg)
	assert.Equal(t, "score = 1 / (1 + exp(-(-0.50 + 2.00*late_ratio)))", model.Formula)
	assert.InDelta(t, 0.0, model.Factors[0].Weight, 1e-12)
}
