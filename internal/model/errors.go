package model

import (
	"errors"
	"fmt"
)

// ModelErrorCode categorizes model construction and evaluation failures.
type ModelErrorCode string

const (
	// ErrCodeTooFewObservations indicates fewer than two observations.
	ErrCodeTooFewObservations ModelErrorCode = "TOO_FEW_OBSERVATIONS"

	// ErrCodeDegenerateX indicates every observation shares one x value.
	ErrCodeDegenerateX ModelErrorCode = "DEGENERATE_X"

	// ErrCodeNonFinitePosition indicates NaN/Inf in a position or density.
	// Samplers treat it as a rejected proposal rather than a fatal error.
	ErrCodeNonFinitePosition ModelErrorCode = "NON_FINITE_POSITION"

	// ErrCodeDimensionMismatch indicates a position or gradient of wrong length.
	ErrCodeDimensionMismatch ModelErrorCode = "DIMENSION_MISMATCH"
)

// ModelError reports a model failure.
type ModelError struct {
	Code    ModelErrorCode
	Message string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNonFinite reports whether err is a recoverable non-finite evaluation.
func IsNonFinite(err error) bool {
	var me *ModelError
	return errors.As(err, &me) && me.Code == ErrCodeNonFinitePosition
}
