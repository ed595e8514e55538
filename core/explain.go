package core

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/attendrisk/attendrisk/schema"
)

// Explain ranks the features of one student by their contribution weight·value.
// Positive contributions raise the risk score. Features that contribute nothing are
// left out. Ties keep feature declaration order. The text only quotes values carried
// by the feature vector.
func Explain(features schema.RiskFeatures, weights map[schema.FeatureKey]float64) []schema.ExplanationFactor {
	factors := make([]schema.ExplanationFactor, 0, schema.FeatureCount)
	for i, key := range schema.FeatureOrder {
		contribution := weights[key] * features.Values[i]
		if contribution == 0 || math.IsNaN(contribution) {
			continue
		}
		factors = append(factors, schema.ExplanationFactor{
			Factor:             key,
			ContributionWeight: contribution,
			Text:               describeFactor(key, features),
		})
	}
	slices.SortStableFunc(factors, func(a, b schema.ExplanationFactor) int {
		return cmp.Compare(math.Abs(b.ContributionWeight), math.Abs(a.ContributionWeight))
	})
	return factors
}

func describeFactor(key schema.FeatureKey, f schema.RiskFeatures) string {
	pct := f.Get(schema.FeaturePercentage)
	switch key {
	case schema.FeaturePercentage:
		return fmt.Sprintf("overall attendance is %s", percent(pct))
	case schema.FeatureTrendSlope:
		trend := pct + f.Get(schema.FeatureTrendSlope)
		direction := "rose"
		if trend < pct {
			direction = "dropped"
		}
		return fmt.Sprintf("attendance %s from %s to %s over the last %d sessions", direction, percent(pct), percent(trend), f.TrendWindow)
	case schema.FeatureLateRatio:
		return fmt.Sprintf("%s of attended sessions were late", percent(f.Get(schema.FeatureLateRatio)))
	case schema.FeatureSessionsRemaining:
		remaining := int(math.Round(f.Get(schema.FeatureSessionsRemaining) * float64(f.PlannedSessions)))
		return fmt.Sprintf("%d of %d planned sessions remain", remaining, f.PlannedSessions)
	case schema.FeatureMarginToThreshold:
		margin := f.Get(schema.FeatureMarginToThreshold)
		side := "above"
		if margin < 0 {
			side = "below"
		}
		return fmt.Sprintf("attendance is %.1f points %s the %s requirement", math.Abs(margin)*100, side, percent(f.RequiredPercentage))
	case schema.FeatureVolatility:
		return fmt.Sprintf("attendance over the last %d sessions is irregular (volatility %.2f)", f.TrendWindow, f.Get(schema.FeatureVolatility))
	default:
		return string(key)
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
