// Package algo has the rule-based risk model and deterministic ranking helpers.
package algo

import (
	"math"

	"github.com/attendrisk/attendrisk/schema"
)

// RuleModel is the default explainable risk model: a weighted sum of the feature
// vector squashed into [0,1] by the logistic function. Its coefficients double as
// explanation attributions.
type RuleModel struct {
	bias         float64
	coefficients [schema.FeatureCount]float64
}

// NewRuleModel builds a model from weights. Missing coefficients are zero.
func NewRuleModel(w schema.ModelWeights) *RuleModel {
	m := &RuleModel{bias: w.Bias}
	for i, key := range schema.FeatureOrder {
		m.coefficients[i] = w.Coefficients[key]
	}
	return m
}

// Linear returns the unsquashed weighted sum, accumulated in feature order.
func (m *RuleModel) Linear(f schema.RiskFeatures) float64 {
	sum := m.bias
	for i, v := range f.Values {
		sum += m.coefficients[i] * v
	}
	return sum
}

// Score returns the risk score in [0,1]. It never fails.
func (m *RuleModel) Score(f schema.RiskFeatures) (float64, error) {
	return Sigmoid(m.Linear(f)), nil
}

// FeatureImportances returns the coefficients keyed by feature.
func (m *RuleModel) FeatureImportances() map[schema.FeatureKey]float64 {
	out := make(map[schema.FeatureKey]float64, schema.FeatureCount)
	for i, key := range schema.FeatureOrder {
		out[key] = m.coefficients[i]
	}
	return out
}

// Bias returns the intercept.
func (m *RuleModel) Bias() float64 {
	return m.bias
}

// Sigmoid is the logistic function.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Label maps a score to a risk label using the configured cutoffs.
func Label(score float64, cutoffs schema.RiskCutoffs) schema.RiskLabel {
	switch {
	case score < cutoffs.Watch:
		return schema.SafeLabel
	case score < cutoffs.AtRisk:
		return schema.WatchLabel
	default:
		return schema.AtRiskLabel
	}
}
