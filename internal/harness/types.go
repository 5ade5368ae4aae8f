package harness

import (
	"github.com/roach88/tmaxfit/internal/session"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the expected outcome and every assertion held.
	Pass bool `json:"pass"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Outcome is what the session reported for the run.
	Outcome *session.RunOutcome `json:"outcome"`

	// Seeds lists the seed of every sampler call, in call order.
	Seeds []uint64 `json:"seeds"`

	// Transitions records every session state change as "from>to".
	Transitions []string `json:"transitions"`

	// FinalState is the session state after the run returned.
	FinalState session.State `json:"final_state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Errors:      []string{},
		Seeds:       []uint64{},
		Transitions: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
