package core

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/attendrisk/attendrisk/schema"
	"github.com/go-playground/validator/v10"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

// newValidator reports field names by their json tag so errors match the config keys.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateConfig checks an engine configuration and returns a *ConfigurationError
// describing the first problem found.
func ValidateConfig(cfg schema.EngineConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ConfigurationError{
				Field:  fieldPath(verrs[0].Namespace()),
				Reason: describeTag(verrs[0]),
				Err:    err,
			}
		}
		return &ConfigurationError{Field: "config", Reason: err.Error(), Err: err}
	}
	if err := validateSessions(cfg); err != nil {
		return err
	}
	if err := validateExcused(cfg); err != nil {
		return err
	}
	if cfg.Weights != nil {
		if err := validateWeights(*cfg.Weights); err != nil {
			return err
		}
	}
	return nil
}

// validateSessions checks what struct tags cannot: unique IDs and the planned total.
func validateSessions(cfg schema.EngineConfig) error {
	seen := make(map[string]struct{}, len(cfg.Sessions))
	for _, s := range cfg.Sessions {
		if _, ok := seen[s.ID]; ok {
			return &ConfigurationError{Field: "sessions", Reason: fmt.Sprintf("has duplicate session id %q", s.ID)}
		}
		seen[s.ID] = struct{}{}
	}
	if cfg.PlannedSessions > 0 && cfg.PlannedSessions < len(cfg.Sessions) {
		return &ConfigurationError{
			Field:  "planned_sessions",
			Reason: fmt.Sprintf("must be at least the number of sessions (%d < %d)", cfg.PlannedSessions, len(cfg.Sessions)),
		}
	}
	return nil
}

func validateExcused(cfg schema.EngineConfig) error {
	known := make(map[string]struct{}, len(cfg.Sessions))
	for _, s := range cfg.Sessions {
		known[s.ID] = struct{}{}
	}
	for _, p := range cfg.ExcusedOverrides {
		if _, ok := known[p.SessionID]; !ok {
			return &ConfigurationError{Field: "excused_overrides", Reason: fmt.Sprintf("references unknown session %q", p.SessionID)}
		}
	}
	return nil
}

// validateWeights keeps the rule model monotone: lowering attendance must never lower
// the score, even though trend_slope moves opposite to percentage.
func validateWeights(w schema.ModelWeights) error {
	if math.IsNaN(w.Bias) || math.IsInf(w.Bias, 0) {
		return &ConfigurationError{Field: "weights.bias", Reason: "must be a finite number"}
	}
	for key, v := range w.Coefficients {
		if !isFeatureKey(key) {
			return &ConfigurationError{Field: "weights." + string(key), Reason: "is not a known feature"}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ConfigurationError{Field: "weights." + string(key), Reason: "must be a finite number"}
		}
	}
	pct := w.Coefficients[schema.FeaturePercentage]
	trend := w.Coefficients[schema.FeatureTrendSlope]
	margin := w.Coefficients[schema.FeatureMarginToThreshold]
	for key, v := range map[schema.FeatureKey]float64{
		schema.FeaturePercentage:        pct,
		schema.FeatureTrendSlope:        trend,
		schema.FeatureMarginToThreshold: margin,
	} {
		if v > 0 {
			return &ConfigurationError{Field: "weights." + string(key), Reason: fmt.Sprintf("must not be positive (got %.3f)", v)}
		}
	}
	if pct+margin > trend {
		return &ConfigurationError{
			Field:  "weights",
			Reason: fmt.Sprintf("percentage + margin_to_threshold (%.3f) must not exceed trend_slope (%.3f)", pct+margin, trend),
		}
	}
	return nil
}

func isFeatureKey(key schema.FeatureKey) bool {
	for _, k := range schema.FeatureOrder {
		if k == key {
			return true
		}
	}
	return false
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s (got %v)", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be <= %s (got %v)", fe.Param(), fe.Value())
	case "lt":
		return fmt.Sprintf("must be < %s (got %v)", fe.Param(), fe.Value())
	case "gtfield":
		return fmt.Sprintf("must be greater than %s (got %v)", strings.ToLower(fe.Param()), fe.Value())
	default:
		return fmt.Sprintf("failed the %q rule", fe.Tag())
	}
}
