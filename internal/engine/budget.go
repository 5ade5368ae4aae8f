package engine

import (
	"errors"
	"fmt"
)

// StepBudget caps the total number of sampler iterations a single run may
// request, summed over chains and both phases.
//
// The check happens once, before any chain is scheduled, so an oversized
// request fails fast instead of after minutes of sampling.
type StepBudget struct {
	limit   uint64 // 0 means unlimited
	current uint64
}

// NewStepBudget creates a budget with the given limit. Zero disables it.
func NewStepBudget(limit uint64) *StepBudget {
	return &StepBudget{limit: limit}
}

// Reserve adds steps to the budget's running total.
//
// Returns StepsExceededError if the total passes the limit; the total is
// left unchanged in that case.
func (b *StepBudget) Reserve(steps uint64) error {
	next := b.current + steps
	if next < b.current {
		return &StepsExceededError{Steps: ^uint64(0), Limit: b.limit}
	}
	if b.limit > 0 && next > b.limit {
		return &StepsExceededError{Steps: next, Limit: b.limit}
	}
	b.current = next
	return nil
}

// Current returns the reserved step count.
func (b *StepBudget) Current() uint64 {
	return b.current
}

// Limit returns the budget limit.
func (b *StepBudget) Limit() uint64 {
	return b.limit
}

// StepsExceededError is returned when a run would exceed its step budget.
type StepsExceededError struct {
	Steps uint64
	Limit uint64
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("step budget exceeded: %d steps > %d limit", e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
