// Package model builds the log-density of a single-covariate Bayesian
// linear regression over a dataset.
//
// The regression is y ~ Normal(intercept + slope*x, exp(logNoiseScale)).
// Sampling happens on standardized data so that one step size suits
// every dataset regardless of units:
//
//	xs = (x - meanX) / sdX
//	ys = (y - meanY) / sdY
//	position = [a, b, log s]   with ys ~ Normal(a + b*xs, s)
//
// Decode maps a position back to Params on the original scale and Encode
// is its exact inverse.
package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/roach88/tmaxfit/internal/dataset"
)

// Prior scales on the standardized parameters.
const (
	CoefPriorSigma     = 2.5
	LogNoisePriorSigma = 1.0
)

// Dim is the sampler-space dimension: a, b, log s.
const Dim = 3

const halfLog2Pi = 0.91893853320467274178 // 0.5 * log(2π)

// Params are the regression parameters on the original data scale.
type Params struct {
	Intercept     float64 `json:"intercept"`
	Slope         float64 `json:"slope"`
	LogNoiseScale float64 `json:"log_noise_scale"`
}

// At evaluates the regression line at x.
func (p Params) At(x float64) float64 {
	return p.Intercept + p.Slope*x
}

// Sigma returns the noise scale exp(LogNoiseScale).
func (p Params) Sigma() float64 {
	return math.Exp(p.LogNoiseScale)
}

// Scale records the standardization applied to the data.
type Scale struct {
	MeanX float64 `json:"mean_x"`
	SDX   float64 `json:"sd_x"`
	MeanY float64 `json:"mean_y"`
	SDY   float64 `json:"sd_y"`
}

// Regression is the target density for one dataset. It is read-only after
// Build and safe to share.
type Regression struct {
	xs, ys []float64
	scale  Scale

	coefPrior  distuv.Normal
	noisePrior distuv.Normal
}

// Build standardizes ds and returns its regression density.
func Build(ds *dataset.Dataset) (*Regression, error) {
	if ds.Len() == 1 && ds.Duplicates() > 0 {
		return nil, &ModelError{
			Code:    ErrCodeDegenerateX,
			Message: fmt.Sprintf("all %d observations share x=%g", ds.Len()+ds.Duplicates(), ds.At(0).X),
		}
	}
	if ds.Len() < dataset.MinObservations {
		return nil, &ModelError{
			Code:    ErrCodeTooFewObservations,
			Message: fmt.Sprintf("need at least %d observations, got %d", dataset.MinObservations, ds.Len()),
		}
	}

	x, y := ds.Columns()
	meanX, sdX := stat.MeanStdDev(x, nil)
	if sdX == 0 || math.IsNaN(sdX) {
		return nil, &ModelError{
			Code:    ErrCodeDegenerateX,
			Message: fmt.Sprintf("all %d observations share x=%g", len(x), x[0]),
		}
	}
	meanY, sdY := stat.MeanStdDev(y, nil)
	if sdY == 0 || math.IsNaN(sdY) {
		sdY = 1
	}

	for i := range x {
		x[i] = (x[i] - meanX) / sdX
		y[i] = (y[i] - meanY) / sdY
	}

	return &Regression{
		xs:         x,
		ys:         y,
		scale:      Scale{MeanX: meanX, SDX: sdX, MeanY: meanY, SDY: sdY},
		coefPrior:  distuv.Normal{Mu: 0, Sigma: CoefPriorSigma},
		noisePrior: distuv.Normal{Mu: 0, Sigma: LogNoisePriorSigma},
	}, nil
}

// Dim returns the sampler-space dimension.
func (r *Regression) Dim() int { return Dim }

// N returns the number of observations.
func (r *Regression) N() int { return len(r.xs) }

// Scale returns the standardization constants.
func (r *Regression) Scale() Scale { return r.scale }

// InitialPosition returns the standardized origin: the line through the
// data means with zero slope and unit noise.
func (r *Regression) InitialPosition() []float64 {
	return make([]float64, Dim)
}

// LogDensity returns the unnormalized log posterior at pos. When grad is
// non-nil it must have length Dim and receives the gradient.
func (r *Regression) LogDensity(pos, grad []float64) (float64, error) {
	if len(pos) != Dim {
		return 0, &ModelError{
			Code:    ErrCodeDimensionMismatch,
			Message: fmt.Sprintf("position has %d coordinates, want %d", len(pos), Dim),
		}
	}
	if grad != nil && len(grad) != Dim {
		return 0, &ModelError{
			Code:    ErrCodeDimensionMismatch,
			Message: fmt.Sprintf("gradient has %d coordinates, want %d", len(grad), Dim),
		}
	}
	for i, v := range pos {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, &ModelError{
				Code:    ErrCodeNonFinitePosition,
				Message: fmt.Sprintf("coordinate %d is %v", i, v),
			}
		}
	}

	a, b, logS := pos[0], pos[1], pos[2]
	invVar := math.Exp(-2 * logS)

	var sumSq, sumR, sumRX float64
	for i, xi := range r.xs {
		res := r.ys[i] - a - b*xi
		sumSq += res * res
		sumR += res
		sumRX += res * xi
	}
	n := float64(len(r.xs))

	lp := -n*(halfLog2Pi+logS) - 0.5*sumSq*invVar
	lp += r.coefPrior.LogProb(a) + r.coefPrior.LogProb(b) + r.noisePrior.LogProb(logS)

	if math.IsNaN(lp) || math.IsInf(lp, 1) {
		return 0, &ModelError{
			Code:    ErrCodeNonFinitePosition,
			Message: fmt.Sprintf("log-density is %v at %v", lp, pos),
		}
	}

	if grad != nil {
		coefVar := CoefPriorSigma * CoefPriorSigma
		noiseVar := LogNoisePriorSigma * LogNoisePriorSigma
		grad[0] = sumR*invVar - a/coefVar
		grad[1] = sumRX*invVar - b/coefVar
		grad[2] = -n + sumSq*invVar - logS/noiseVar
	}
	return lp, nil
}

// Decode maps a sampler position to original-scale parameters.
func (r *Regression) Decode(pos []float64) Params {
	s := r.scale
	slope := s.SDY * pos[1] / s.SDX
	return Params{
		Intercept:     s.MeanY + s.SDY*pos[0] - slope*s.MeanX,
		Slope:         slope,
		LogNoiseScale: pos[2] + math.Log(s.SDY),
	}
}

// Encode maps original-scale parameters to a sampler position.
func (r *Regression) Encode(p Params) []float64 {
	s := r.scale
	return []float64{
		(p.Intercept + p.Slope*s.MeanX - s.MeanY) / s.SDY,
		p.Slope * s.SDX / s.SDY,
		p.LogNoiseScale - math.Log(s.SDY),
	}
}
