package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrModelUnavailable is returned by the ML scorer when no trained model is
// loaded. The engine never surfaces it: scoring falls back to rule-only mode.
var ErrModelUnavailable = errors.New("no trained model loaded")

// ErrNotFound is returned by indicator stores for unknown indicators
var ErrNotFound = errors.New("indicator not found")

// InvalidIndicatorError rejects a malformed type or value before any scoring
type InvalidIndicatorError struct {
	Type   string
	Value  string
	Reason string
}

func (e *InvalidIndicatorError) Error() string {
	return fmt.Sprintf("invalid indicator %s %q: %s", e.Type, e.Value, e.Reason)
}

// FeatureSchemaMismatchError signals drift between the feature vector and the
// model's expected feature ordering. It is fatal for the call.
type FeatureSchemaMismatchError struct {
	ModelVersion  string
	ModelSchema   string
	VectorSchema  string
	Missing       []string // expected by the model, absent from the vector
	Unexpected    []string // present in the vector, unknown to the model
	FirstMismatch int      // first index where ordering differs, -1 if none
}

func (e *FeatureSchemaMismatchError) Error() string {
	var parts []string
	if e.ModelSchema != "" && e.ModelSchema != e.VectorSchema {
		parts = append(parts, fmt.Sprintf("schema %s != %s", e.VectorSchema, e.ModelSchema))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ","))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Unexpected, ","))
	}
	if e.FirstMismatch >= 0 {
		parts = append(parts, fmt.Sprintf("ordering differs at index %d", e.FirstMismatch))
	}
	return fmt.Sprintf("feature schema mismatch for model %s: %s", e.ModelVersion, strings.Join(parts, "; "))
}

// ExplanationDegradedWarning records that attribution failed and only a
// partial, rule-based explanation was produced
type ExplanationDegradedWarning struct {
	Cause error
}

func (w *ExplanationDegradedWarning) Error() string {
	return fmt.Sprintf("explanation degraded: %v", w.Cause)
}

func (w *ExplanationDegradedWarning) Unwrap() error {
	return w.Cause
}

// ConfigError reports an invalid scoring rules document
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid rules config: %s: %s", e.Field, e.Reason)
}
