package core

import (
	"fmt"

	"github.com/attendrisk/attendrisk/schema"
)

// MalformedEventError reports one raw input that could not be normalized.
// It is recoverable: the input is dropped and counted in the batch summary.
type MalformedEventError struct {
	Index  int
	Source schema.Source
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event at index %d: %s", e.Source, e.Index, e.Reason)
}

// ConfigurationError reports an invalid engine configuration.
// It is fatal and always raised before any input is processed.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// PredictorUnavailableError reports an injected predictor that failed at call time.
// The affected report is scored by the rule model instead and flagged as fallback-scored.
type PredictorUnavailableError struct {
	StudentID string
	Err       error
}

func (e *PredictorUnavailableError) Error() string {
	return fmt.Sprintf("predictor unavailable for student %s: %v", e.StudentID, e.Err)
}

func (e *PredictorUnavailableError) Unwrap() error {
	return e.Err
}
