package engine

import (
	"github.com/roach88/tmaxfit/internal/ident"
	"github.com/roach88/tmaxfit/internal/model"
)

// Draw is one decoded sampler state, tagged with its chain and iteration.
type Draw struct {
	Chain     uint64       `json:"chain"`
	Iteration uint64       `json:"iteration"`
	Tuning    bool         `json:"tuning"`
	Divergent bool         `json:"divergent"`
	Params    model.Params `json:"params"`
}

// RunResult holds every draw of a completed run, chain-major and
// iteration-minor. It is only ever returned complete.
type RunResult struct {
	Config RunConfig `json:"config"`
	Draws  []Draw    `json:"draws"`
}

// TuningCount returns the number of tuning draws across all chains.
func (r *RunResult) TuningCount() int {
	n := 0
	for _, d := range r.Draws {
		if d.Tuning {
			n++
		}
	}
	return n
}

// SamplingCount returns the number of post-tuning draws across all chains.
func (r *RunResult) SamplingCount() int {
	return len(r.Draws) - r.TuningCount()
}

// DivergentCount returns the number of draws flagged divergent.
func (r *RunResult) DivergentCount() int {
	n := 0
	for _, d := range r.Draws {
		if d.Divergent {
			n++
		}
	}
	return n
}

// Chain returns a copy of the draws of one chain, in iteration order.
func (r *RunResult) Chain(chain uint64) []Draw {
	var out []Draw
	for _, d := range r.Draws {
		if d.Chain == chain {
			out = append(out, d)
		}
	}
	return out
}

// Digest returns a content hash over every draw. Two results share a
// digest only when they are bit-identical.
func (r *RunResult) Digest() string {
	h := ident.NewHasher(ident.DomainDraws).Uint64(uint64(len(r.Draws)))
	for _, d := range r.Draws {
		h.Uint64(d.Chain).
			Uint64(d.Iteration).
			Bool(d.Tuning).
			Bool(d.Divergent).
			Float64(d.Params.Intercept).
			Float64(d.Params.Slope).
			Float64(d.Params.LogNoiseScale)
	}
	return h.Sum()
}
