package core

import (
	"fmt"
	"math"
	"sync"

	"github.com/attendrisk/attendrisk/core/algo"
	"github.com/attendrisk/attendrisk/schema"
)

// Predictor scores a feature vector. Implementations must return a value in [0,1].
type Predictor interface {
	Score(features schema.RiskFeatures) (float64, error)
}

// ImportanceProvider is implemented by predictors that can rank their own features.
// The values are used as explanation weights in place of the rule model coefficients.
type ImportanceProvider interface {
	FeatureImportances() map[schema.FeatureKey]float64
}

// PredictorFunc adapts a plain function to the Predictor interface.
type PredictorFunc func(features schema.RiskFeatures) (float64, error)

// Score calls f.
func (f PredictorFunc) Score(features schema.RiskFeatures) (float64, error) {
	return f(features)
}

// serializedPredictor guards a stateful predictor with a mutex.
type serializedPredictor struct {
	mu    sync.Mutex
	inner Predictor
}

// Serialized wraps p so that at most one Score call runs at a time.
// The importances of p stay visible through the wrapper.
func Serialized(p Predictor) Predictor {
	if ip, ok := p.(ImportanceProvider); ok {
		return &serializedImportancePredictor{serializedPredictor{inner: p}, ip}
	}
	return &serializedPredictor{inner: p}
}

func (s *serializedPredictor) Score(features schema.RiskFeatures) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Score(features)
}

type serializedImportancePredictor struct {
	serializedPredictor
	importances ImportanceProvider
}

func (s *serializedImportancePredictor) FeatureImportances() map[schema.FeatureKey]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.importances.FeatureImportances()
}

// prediction is the outcome of scoring one student.
type prediction struct {
	score       float64
	fallback    bool
	attribution map[schema.FeatureKey]float64
	err         error // set when the injected predictor failed
}

// predict scores features with p, falling back to the rule model when p is nil,
// returns an error, panics or returns a score outside [0,1].
func predict(p Predictor, rule *algo.RuleModel, features schema.RiskFeatures) prediction {
	shadow, _ := rule.Score(features)
	if p == nil {
		return prediction{score: shadow, attribution: rule.FeatureImportances()}
	}
	score, err := safeScore(p, features)
	if err == nil && (math.IsNaN(score) || score < 0 || score > 1) {
		err = fmt.Errorf("score %v outside [0,1]", score)
	}
	if err != nil {
		return prediction{
			score:       shadow,
			fallback:    true,
			attribution: rule.FeatureImportances(),
			err:         &PredictorUnavailableError{StudentID: features.StudentID, Err: err},
		}
	}
	attribution := rule.FeatureImportances()
	if ip, ok := p.(ImportanceProvider); ok {
		if imp := safeImportances(ip); len(imp) > 0 {
			attribution = imp
		}
	}
	return prediction{score: score, attribution: attribution}
}

func safeScore(p Predictor, features schema.RiskFeatures) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predictor panicked: %v", r)
		}
	}()
	return p.Score(features)
}

func safeImportances(ip ImportanceProvider) (out map[schema.FeatureKey]float64) {
	defer func() {
		if recover() != nil {
			out = nil
		}
	}()
	return ip.FeatureImportances()
}
