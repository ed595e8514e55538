package core

import (
	"fmt"
	"strings"

	"github.com/attendrisk/attendrisk/core/algo"
	"github.com/attendrisk/attendrisk/schema"
)

// featureDescriptions says what each feature measures, for the model display.
var featureDescriptions = map[schema.FeatureKey]string{
	schema.FeaturePercentage:        "Attended share of countable sessions, carryover included",
	schema.FeatureTrendSlope:        "Recent window attendance minus overall attendance",
	schema.FeatureLateRatio:         "Share of attended sessions that were late",
	schema.FeatureSessionsRemaining: "Share of planned sessions not yet held",
	schema.FeatureMarginToThreshold: "Overall attendance minus the requirement",
	schema.FeatureVolatility:        "Spread of attendance in the recent window",
}

// BuildModelRenderModel describes the rule model the engine scores with under cfg.
func BuildModelRenderModel(cfg schema.EngineConfig) schema.ModelRenderModel {
	model := algo.NewRuleModel(cfg.EffectiveWeights())
	importances := model.FeatureImportances()

	factors := make([]schema.ModelFactor, 0, schema.FeatureCount)
	terms := []string{fmt.Sprintf("%.2f", model.Bias())}
	for _, key := range schema.FeatureOrder {
		weight := importances[key]
		factors = append(factors, schema.ModelFactor{
			Feature:     key,
			Weight:      weight,
			Description: featureDescriptions[key],
		})
		if weight != 0 {
			terms = append(terms, fmt.Sprintf("%.2f*%s", weight, key))
		}
	}

	return schema.ModelRenderModel{
		Description: "Risk = logistic(bias + weighted sum of features)",
		Version:     schema.FeatureVersion,
		Formula:     fmt.Sprintf("score = 1 / (1 + exp(-(%s)))", strings.Join(terms, " + ")),
		Bias:        model.Bias(),
		Factors:     factors,
		Cutoffs:     cfg.RiskCutoffs,
		Required:    cfg.RequiredPercentage,
	}
}
