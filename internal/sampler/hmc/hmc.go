// Package hmc is a reference Hamiltonian Monte Carlo sampler with
// dual-averaging step-size adaptation during the tuning phase.
//
// It is deliberately small: identity mass matrix, fixed integration time,
// one chain per call. Randomness comes from a PCG stream seeded by the
// chain seed, so a call is a pure function of its inputs.
package hmc

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"

	"github.com/roach88/tmaxfit/internal/sampler"
)

// Defaults for the adaptation and trajectory length.
const (
	DefaultTargetAccept    = 0.8
	DefaultIntegrationTime = 1.0
	DefaultMaxLeapfrog     = 100

	// divergenceThreshold is the energy error past which a trajectory is
	// flagged divergent.
	divergenceThreshold = 1000.0

	// ctxCheckEvery bounds how many iterations run between ctx checks.
	ctxCheckEvery = 64
)

// Dual-averaging constants from Hoffman & Gelman (2014).
const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75
)

// ErrBadInitialPosition is returned when the target cannot be evaluated at
// the starting position.
var ErrBadInitialPosition = errors.New("hmc: log-density not finite at initial position")

// Sampler implements sampler.Sampler.
type Sampler struct {
	targetAccept    float64
	integrationTime float64
	maxLeapfrog     int
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithTargetAccept sets the acceptance rate the tuning phase aims for.
func WithTargetAccept(p float64) Option {
	return func(s *Sampler) {
		if p > 0 && p < 1 {
			s.targetAccept = p
		}
	}
}

// WithIntegrationTime sets the trajectory length in units of step size.
func WithIntegrationTime(t float64) Option {
	return func(s *Sampler) {
		if t > 0 {
			s.integrationTime = t
		}
	}
}

// WithMaxLeapfrog caps leapfrog steps per iteration.
func WithMaxLeapfrog(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.maxLeapfrog = n
		}
	}
}

// New returns a sampler with the given options.
func New(opts ...Option) *Sampler {
	s := &Sampler{
		targetAccept:    DefaultTargetAccept,
		integrationTime: DefaultIntegrationTime,
		maxLeapfrog:     DefaultMaxLeapfrog,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ sampler.Sampler = (*Sampler)(nil)

// chain holds the evolving state of one call to Sample.
type chain struct {
	target sampler.Target
	rng    *rand.Rand
	dim    int

	q    []float64
	lp   float64
	grad []float64

	// scratch for proposals
	qNew, pNew, gNew, p []float64
}

// Sample runs tuning+samples iterations and returns every state.
func (s *Sampler) Sample(ctx context.Context, target sampler.Target, seed uint64, tuning, samples uint64) ([]sampler.Draw, error) {
	dim := target.Dim()
	c := &chain{
		target: target,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		dim:    dim,
		q:      make([]float64, dim),
		grad:   make([]float64, dim),
		qNew:   make([]float64, dim),
		pNew:   make([]float64, dim),
		gNew:   make([]float64, dim),
		p:      make([]float64, dim),
	}
	if init, ok := target.(sampler.Initializer); ok {
		if start := init.InitialPosition(); len(start) == dim {
			copy(c.q, start)
		}
	}

	lp, err := target.LogDensity(c.q, c.grad)
	if err != nil {
		return nil, errors.Join(ErrBadInitialPosition, err)
	}
	if !finite(lp) {
		return nil, ErrBadInitialPosition
	}
	c.lp = lp

	eps := c.reasonableStepSize()
	mu := math.Log(10 * eps)
	var hBar, logEpsBar float64

	total := tuning + samples
	draws := make([]sampler.Draw, 0, total)

	for i := uint64(0); i < total; i++ {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		steps := int(math.Round(s.integrationTime / eps))
		steps = max(1, min(steps, s.maxLeapfrog))

		accept, divergent := c.transition(eps, steps)

		isTuning := i < tuning
		if isTuning {
			m := float64(i + 1)
			w := 1 / (m + daT0)
			hBar = (1-w)*hBar + w*(s.targetAccept-accept)
			logEps := mu - math.Sqrt(m)/daGamma*hBar
			logEps = math.Max(-20, math.Min(logEps, 5))
			eta := math.Pow(m, -daKappa)
			logEpsBar = eta*logEps + (1-eta)*logEpsBar
			eps = math.Exp(logEps)
			if i == tuning-1 {
				eps = math.Exp(logEpsBar)
			}
		}

		draws = append(draws, sampler.Draw{
			Position:  append([]float64(nil), c.q...),
			Tuning:    isTuning,
			Divergent: divergent,
		})
	}
	return draws, nil
}

// transition performs one HMC step and returns the acceptance probability
// and whether the trajectory diverged.
func (c *chain) transition(eps float64, steps int) (float64, bool) {
	for i := range c.p {
		c.p[i] = c.rng.NormFloat64()
	}
	h0 := -c.lp + kinetic(c.p)

	lpNew, ok := c.leapfrog(eps, steps)
	if !ok {
		c.rng.Float64() // keep the stream aligned with accepted/rejected paths
		return 0, true
	}

	h1 := -lpNew + kinetic(c.pNew)
	dH := h1 - h0
	if !finite(dH) || dH > divergenceThreshold {
		c.rng.Float64()
		return 0, true
	}

	accept := math.Min(1, math.Exp(-dH))
	if c.rng.Float64() < accept {
		copy(c.q, c.qNew)
		copy(c.grad, c.gNew)
		c.lp = lpNew
	}
	return accept, false
}

// leapfrog integrates from (q, p) for the given steps into (qNew, pNew).
// It reports false when the target could not be evaluated along the path.
func (c *chain) leapfrog(eps float64, steps int) (float64, bool) {
	copy(c.qNew, c.q)
	copy(c.pNew, c.p)
	copy(c.gNew, c.grad)

	var lp float64
	for s := 0; s < steps; s++ {
		for i := range c.pNew {
			c.pNew[i] += 0.5 * eps * c.gNew[i]
			c.qNew[i] += eps * c.pNew[i]
		}
		var err error
		lp, err = c.target.LogDensity(c.qNew, c.gNew)
		if err != nil || !finite(lp) {
			return 0, false
		}
		for i := range c.pNew {
			c.pNew[i] += 0.5 * eps * c.gNew[i]
		}
	}
	return lp, true
}

// reasonableStepSize doubles or halves a unit step until a single
// leapfrog step has acceptance near one half.
func (c *chain) reasonableStepSize() float64 {
	eps := 1.0
	for i := range c.p {
		c.p[i] = c.rng.NormFloat64()
	}
	h0 := -c.lp + kinetic(c.p)

	logRatio := func(eps float64) float64 {
		lp, ok := c.leapfrog(eps, 1)
		if !ok {
			return math.Inf(-1)
		}
		r := h0 - (-lp + kinetic(c.pNew))
		if math.IsNaN(r) {
			return math.Inf(-1)
		}
		return r
	}

	dir := -1.0
	if logRatio(eps) > math.Log(0.5) {
		dir = 1.0
	}
	for k := 0; k < 100; k++ {
		if dir*logRatio(eps) <= -dir*math.Ln2 {
			break
		}
		next := eps * math.Pow(2, dir)
		if next < 1e-8 || next > 1e3 {
			break
		}
		eps = next
	}
	return eps
}

func kinetic(p []float64) float64 {
	var k float64
	for _, v := range p {
		k += v * v
	}
	return 0.5 * k
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
