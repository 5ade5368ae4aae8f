package engine

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned (wrapped in a RunError) when a run is cancelled
// between chains. No draws survive a cancelled run.
var ErrCancelled = errors.New("run cancelled")

// ErrContractViolation marks sampler output that breaks the sampler
// contract: wrong length, mistagged tuning draws, wrong dimension or
// non-finite positions.
var ErrContractViolation = errors.New("sampler contract violation")

// RunError represents a run-level failure detected by the engine.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeInvalidConfig indicates a RunConfig that cannot be executed.
	ErrCodeInvalidConfig RunErrorCode = "INVALID_CONFIG"

	// ErrCodeStepBudgetExceeded indicates the run would exceed the step budget.
	ErrCodeStepBudgetExceeded RunErrorCode = "STEP_BUDGET_EXCEEDED"

	// ErrCodeCancelled indicates the run was cancelled by the host.
	ErrCodeCancelled RunErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}

// SamplerError reports the chain whose sampler call failed.
type SamplerError struct {
	Chain uint64
	Seed  uint64
	Err   error
}

func (e *SamplerError) Error() string {
	return fmt.Sprintf("chain %d (seed %d): %v", e.Chain, e.Seed, e.Err)
}

func (e *SamplerError) Unwrap() error {
	return e.Err
}

// IsCancelled returns true if the error is a cancellation.
// Uses errors.As to handle wrapped errors.
func IsCancelled(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCancelled
	}
	return errors.Is(err, ErrCancelled)
}

// IsBudgetError returns true if the error is a step budget failure.
// Matches both RunError with ErrCodeStepBudgetExceeded and StepsExceededError.
func IsBudgetError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStepBudgetExceeded
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// IsSamplerError returns true if a chain's sampler call failed.
func IsSamplerError(err error) bool {
	var se *SamplerError
	return errors.As(err, &se)
}

// NewConfigError creates a RunError for an invalid configuration.
func NewConfigError(format string, args ...any) *RunError {
	return &RunError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewBudgetError creates a RunError for an exceeded step budget.
func NewBudgetError(se *StepsExceededError) *RunError {
	return &RunError{
		Code:    ErrCodeStepBudgetExceeded,
		Message: fmt.Sprintf("run needs %d steps, budget is %d", se.Steps, se.Limit),
		Details: map[string]string{
			"steps":  fmt.Sprintf("%d", se.Steps),
			"budget": fmt.Sprintf("%d", se.Limit),
		},
		Err: se,
	}
}

// NewCancelledError creates a RunError for a cancelled run. cause is the
// context error, if any.
func NewCancelledError(completed uint64, cause error) *RunError {
	err := ErrCancelled
	if cause != nil {
		err = errors.Join(ErrCancelled, cause)
	}
	return &RunError{
		Code:    ErrCodeCancelled,
		Message: fmt.Sprintf("cancelled after %d completed chain(s)", completed),
		Details: map[string]string{
			"completed_chains": fmt.Sprintf("%d", completed),
		},
		Err: err,
	}
}
