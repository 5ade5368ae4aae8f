// Package testutil provides deterministic fakes for tests and scenario
// runs: samplers with known output, a stepping clock and fixed run IDs.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/tmaxfit/internal/sampler"
)

// ConstantSampler returns every draw at the same position.
//
// With a known position the whole pipeline downstream of the sampler is
// exactly predictable, which is what golden snapshots need.
type ConstantSampler struct {
	Position []float64
}

// Sample implements sampler.Sampler.
func (s ConstantSampler) Sample(ctx context.Context, target sampler.Target, seed uint64, tuning, samples uint64) ([]sampler.Draw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pos := s.Position
	if pos == nil {
		pos = make([]float64, target.Dim())
	}
	draws := make([]sampler.Draw, 0, tuning+samples)
	for i := uint64(0); i < tuning+samples; i++ {
		draws = append(draws, sampler.Draw{
			Position: append([]float64(nil), pos...),
			Tuning:   i < tuning,
		})
	}
	return draws, nil
}

// SeedEchoSampler encodes the seed into every position so tests can see
// which seed each chain received. Positions are [seed/2^64, i, 0...].
type SeedEchoSampler struct{}

// Sample implements sampler.Sampler.
func (SeedEchoSampler) Sample(ctx context.Context, target sampler.Target, seed uint64, tuning, samples uint64) ([]sampler.Draw, error) {
	draws := make([]sampler.Draw, 0, tuning+samples)
	for i := uint64(0); i < tuning+samples; i++ {
		pos := make([]float64, target.Dim())
		pos[0] = float64(seed) / (1 << 64)
		if len(pos) > 1 {
			pos[1] = float64(i)
		}
		draws = append(draws, sampler.Draw{Position: pos, Tuning: i < tuning})
	}
	return draws, nil
}

// ErrInjected is the error RecordingSampler returns on FailOnCall.
var ErrInjected = errors.New("injected sampler failure")

// RecordingSampler wraps a sampler and records the seed of every call.
// It can be told to fail on a given call.
type RecordingSampler struct {
	Inner sampler.Sampler

	// FailOnCall makes the n-th call (1-based) return ErrInjected.
	// Zero never fails.
	FailOnCall int

	mu    sync.Mutex
	seeds []uint64
}

// Sample implements sampler.Sampler.
func (r *RecordingSampler) Sample(ctx context.Context, target sampler.Target, seed uint64, tuning, samples uint64) ([]sampler.Draw, error) {
	r.mu.Lock()
	r.seeds = append(r.seeds, seed)
	call := len(r.seeds)
	r.mu.Unlock()

	if r.FailOnCall > 0 && call == r.FailOnCall {
		return nil, ErrInjected
	}
	return r.Inner.Sample(ctx, target, seed, tuning, samples)
}

// Seeds returns the seeds passed so far, in call order.
func (r *RecordingSampler) Seeds() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seeds...)
}

// Calls returns the number of Sample calls so far.
func (r *RecordingSampler) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seeds)
}
