// Package posterior reduces a run's draws to what the plots and reports
// need: per-chain traces, the fitted line with a credible band, and
// per-parameter summaries with convergence diagnostics.
package posterior

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/tmaxfit/internal/dataset"
	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/model"
)

// ErrNoDraws is returned when a run has no post-tuning draws to summarize.
var ErrNoDraws = errors.New("posterior: no post-tuning draws to summarize")

// ErrNilResult is returned when Summarize is given no run result.
var ErrNilResult = errors.New("posterior: nil run result")

const (
	// DefaultGridSize is the number of x points on the fitted curve.
	DefaultGridSize = 100

	// DefaultCredibleMass is the probability mass inside the band.
	DefaultCredibleMass = 0.90
)

// Parameter names as they appear in summaries and reports.
const (
	ParamIntercept     = "intercept"
	ParamSlope         = "slope"
	ParamLogNoiseScale = "log_noise_scale"
)

// FitPoint is one grid point of the fitted regression line.
type FitPoint struct {
	X     float64 `json:"x"`
	Mean  float64 `json:"mean"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ParamSummary describes the marginal posterior of one parameter.
type ParamSummary struct {
	Name  string  `json:"name"`
	Mean  float64 `json:"mean"`
	SD    float64 `json:"sd"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`

	// RHat is the Gelman-Rubin statistic, nil when fewer than two chains
	// with two draws each exist or the chains are degenerate.
	RHat *float64 `json:"rhat,omitempty"`
}

// Summary is the reduced posterior of one run.
type Summary struct {
	// Traces holds the post-tuning draws of each chain in iteration order.
	Traces map[uint64][]engine.Draw `json:"traces"`

	Fit          []FitPoint     `json:"fit"`
	Params       []ParamSummary `json:"params"`
	CredibleMass float64        `json:"credible_mass"`

	// Draws is the number of pooled post-tuning draws.
	Draws int `json:"draws"`
}

type options struct {
	grid int
	mass float64
}

// Option configures Summarize.
type Option func(*options)

// WithGrid sets the number of fit grid points. Values below 2 are ignored.
func WithGrid(n int) Option {
	return func(o *options) {
		if n >= 2 {
			o.grid = n
		}
	}
}

// WithCredibleMass sets the band's probability mass, in (0, 1).
func WithCredibleMass(mass float64) Option {
	return func(o *options) {
		if mass > 0 && mass < 1 {
			o.mass = mass
		}
	}
}

// Summarize drops tuning draws and reduces the rest.
//
// ds supplies the x range of the fit grid; a nil or empty dataset yields
// an empty Fit.
func Summarize(res *engine.RunResult, ds *dataset.Dataset, opts ...Option) (*Summary, error) {
	o := options{grid: DefaultGridSize, mass: DefaultCredibleMass}
	for _, opt := range opts {
		opt(&o)
	}
	if res == nil {
		return nil, ErrNilResult
	}

	traces := make(map[uint64][]engine.Draw)
	var pooled []model.Params
	for _, d := range res.Draws {
		if d.Tuning {
			continue
		}
		traces[d.Chain] = append(traces[d.Chain], d)
		pooled = append(pooled, d.Params)
	}
	if len(pooled) == 0 {
		return nil, ErrNoDraws
	}

	s := &Summary{
		Traces:       traces,
		CredibleMass: o.mass,
		Draws:        len(pooled),
	}

	lowP, highP := (1-o.mass)/2, (1+o.mass)/2

	if ds.Len() > 0 {
		lo, hi := ds.XRange()
		grid := floats.Span(make([]float64, o.grid), lo, hi)
		s.Fit = fitCurve(grid, pooled, lowP, highP)
	}

	s.Params = []ParamSummary{
		summarizeParam(ParamIntercept, traces, func(p model.Params) float64 { return p.Intercept }, lowP, highP),
		summarizeParam(ParamSlope, traces, func(p model.Params) float64 { return p.Slope }, lowP, highP),
		summarizeParam(ParamLogNoiseScale, traces, func(p model.Params) float64 { return p.LogNoiseScale }, lowP, highP),
	}
	return s, nil
}

func fitCurve(grid []float64, pooled []model.Params, lowP, highP float64) []FitPoint {
	vals := make([]float64, len(pooled))
	fit := make([]FitPoint, len(grid))
	for i, x := range grid {
		for j, p := range pooled {
			vals[j] = p.At(x)
		}
		mean := stat.Mean(vals, nil)
		sort.Float64s(vals)
		fit[i] = FitPoint{
			X:     x,
			Mean:  mean,
			Lower: stat.Quantile(lowP, stat.Empirical, vals, nil),
			Upper: stat.Quantile(highP, stat.Empirical, vals, nil),
		}
	}
	return fit
}

func summarizeParam(name string, traces map[uint64][]engine.Draw, get func(model.Params) float64, lowP, highP float64) ParamSummary {
	var all []float64
	perChain := make([][]float64, 0, len(traces))
	for _, chain := range sortedChains(traces) {
		col := make([]float64, len(traces[chain]))
		for i, d := range traces[chain] {
			col[i] = get(d.Params)
		}
		perChain = append(perChain, col)
		all = append(all, col...)
	}

	mean, sd := stat.MeanStdDev(all, nil)
	if len(all) < 2 {
		sd = 0
	}
	sort.Float64s(all)
	return ParamSummary{
		Name:  name,
		Mean:  mean,
		SD:    sd,
		Lower: stat.Quantile(lowP, stat.Empirical, all, nil),
		Upper: stat.Quantile(highP, stat.Empirical, all, nil),
		RHat:  gelmanRubin(perChain),
	}
}

// gelmanRubin computes the potential scale reduction factor over chains
// of equal length.
func gelmanRubin(chains [][]float64) *float64 {
	m := len(chains)
	if m < 2 {
		return nil
	}
	n := len(chains[0])
	if n < 2 {
		return nil
	}
	means := make([]float64, m)
	var w float64
	for j, c := range chains {
		if len(c) != n {
			return nil
		}
		mu, sd := stat.MeanStdDev(c, nil)
		means[j] = mu
		w += sd * sd
	}
	w /= float64(m)

	_, sdMeans := stat.MeanStdDev(means, nil)
	b := float64(n) * sdMeans * sdMeans

	if w == 0 {
		if b == 0 {
			one := 1.0
			return &one
		}
		return nil
	}
	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	r := math.Sqrt(varPlus / w)
	return &r
}

func sortedChains(traces map[uint64][]engine.Draw) []uint64 {
	keys := make([]uint64, 0, len(traces))
	for k := range traces {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Chains returns the chain indices present in the traces, ascending.
func (s *Summary) Chains() []uint64 {
	return sortedChains(s.Traces)
}

// Pooled returns every post-tuning draw's parameters, chain-major.
func (s *Summary) Pooled() []model.Params {
	out := make([]model.Params, 0, s.Draws)
	for _, chain := range s.Chains() {
		for _, d := range s.Traces[chain] {
			out = append(out, d.Params)
		}
	}
	return out
}

// PosteriorSample returns n draws evenly spaced through the pooled
// posterior. It returns every draw when n exceeds the pool.
func (s *Summary) PosteriorSample(n int) []model.Params {
	pooled := s.Pooled()
	if n <= 0 {
		return nil
	}
	if n >= len(pooled) {
		return pooled
	}
	out := make([]model.Params, n)
	for i := range out {
		out[i] = pooled[i*len(pooled)/n]
	}
	return out
}

// Param returns the summary of the named parameter.
func (s *Summary) Param(name string) (ParamSummary, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSummary{}, false
}

// FitAt returns the fit point whose x is closest to x.
func (s *Summary) FitAt(x float64) (FitPoint, bool) {
	if len(s.Fit) == 0 {
		return FitPoint{}, false
	}
	best := s.Fit[0]
	for _, p := range s.Fit[1:] {
		if math.Abs(p.X-x) < math.Abs(best.X-x) {
			best = p
		}
	}
	return best, true
}

// Predict computes the fit point at an arbitrary x from the pooled draws.
func (s *Summary) Predict(x float64) FitPoint {
	lowP, highP := (1-s.CredibleMass)/2, (1+s.CredibleMass)/2
	return fitCurve([]float64{x}, s.Pooled(), lowP, highP)[0]
}
