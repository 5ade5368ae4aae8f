package engine

import "math/bits"

// MaxChainCount bounds ChainCount. Chains run sequentially, so more than
// this is never useful and would only grow the task queue.
const MaxChainCount = 1024

// RunConfig is the user-chosen shape of a sampling run.
type RunConfig struct {
	BaseSeed    uint64 `json:"base_seed" yaml:"seed"`
	ChainCount  uint64 `json:"chain_count" yaml:"chains"`
	TuningSteps uint64 `json:"tuning_steps" yaml:"tuning"`
	SampleSteps uint64 `json:"sample_steps" yaml:"samples"`
}

// Validate checks that the config can be executed.
//
// SampleSteps may be zero: the run then produces tuning draws only, and
// summarizing it reports that no post-tuning draws exist.
func (c RunConfig) Validate() error {
	if c.ChainCount == 0 {
		return NewConfigError("chain count must be at least 1")
	}
	if c.ChainCount > MaxChainCount {
		return NewConfigError("chain count %d exceeds maximum %d", c.ChainCount, MaxChainCount)
	}
	if _, carry := bits.Add64(c.TuningSteps, c.SampleSteps, 0); carry != 0 {
		return NewConfigError("tuning (%d) + samples (%d) overflows", c.TuningSteps, c.SampleSteps)
	}
	return nil
}

// StepsPerChain returns TuningSteps + SampleSteps.
func (c RunConfig) StepsPerChain() uint64 {
	return c.TuningSteps + c.SampleSteps
}

// TotalSteps returns the iterations requested across all chains and
// reports false if the product overflows uint64.
func (c RunConfig) TotalSteps() (uint64, bool) {
	hi, lo := bits.Mul64(c.ChainCount, c.StepsPerChain())
	return lo, hi == 0
}
