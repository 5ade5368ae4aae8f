// Package sampler defines the boundary between the chain orchestrator and
// a gradient-based Markov-chain sampler.
//
// The orchestrator never looks inside a sampler. It hands over a Target
// and a seed and receives an ordered sequence of draws back. Any
// implementation that honors the contract below can be plugged in:
//
//   - the same (target, seed, tuning, samples) yields the same draws
//   - the result has exactly tuning+samples draws, tuning ones first
//   - every Position has length target.Dim()
//   - ctx cancellation may abort the call with ctx.Err()
package sampler

import "context"

// Target is a differentiable log-density over R^Dim.
type Target interface {
	Dim() int

	// LogDensity returns the unnormalized log-density at pos and, when
	// grad is non-nil, writes the gradient into it.
	LogDensity(pos, grad []float64) (float64, error)
}

// Initializer is optionally implemented by targets that suggest a
// starting position.
type Initializer interface {
	InitialPosition() []float64
}

// Draw is one state of a chain.
type Draw struct {
	Position  []float64
	Tuning    bool
	Divergent bool
}

// Sampler produces one chain of draws for a target.
type Sampler interface {
	Sample(ctx context.Context, target Target, seed uint64, tuning, samples uint64) ([]Draw, error)
}

// Func adapts a function to the Sampler interface.
type Func func(ctx context.Context, target Target, seed uint64, tuning, samples uint64) ([]Draw, error)

// Sample calls f.
func (f Func) Sample(ctx context.Context, target Target, seed uint64, tuning, samples uint64) ([]Draw, error) {
	return f(ctx, target, seed, tuning, samples)
}
