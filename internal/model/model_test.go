package model

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tmaxfit/internal/dataset"
)

func mustDataset(t *testing.T, obs ...dataset.Observation) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(obs)
	require.NoError(t, err)
	return ds
}

func lineData(t *testing.T) *dataset.Dataset {
	return mustDataset(t,
		dataset.Observation{X: 1, Y: 10.2},
		dataset.Observation{X: 2, Y: 11.7},
		dataset.Observation{X: 3, Y: 14.1},
		dataset.Observation{X: 4, Y: 16.3},
		dataset.Observation{X: 5, Y: 17.6},
	)
}

func TestBuild_Standardizes(t *testing.T) {
	m, err := Build(lineData(t))
	require.NoError(t, err)

	s := m.Scale()
	assert.InDelta(t, 3.0, s.MeanX, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), s.SDX, 1e-12)
	assert.Equal(t, 5, m.N())
	assert.Equal(t, Dim, m.Dim())
	assert.Equal(t, []float64{0, 0, 0}, m.InitialPosition())
}

func TestBuild_TooFew(t *testing.T) {
	_, err := Build(mustDataset(t, dataset.Observation{X: 1, Y: 1}))
	var me *ModelError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, ErrCodeTooFewObservations, me.Code)

	_, err = Build(nil)
	require.True(t, errors.As(err, &me))
}

func TestBuild_DegenerateX(t *testing.T) {
	ds, err := dataset.New([]dataset.Observation{{X: 1, Y: 10}, {X: 1, Y: 12}, {X: 1, Y: 14}})
	require.NoError(t, err)

	_, err = Build(ds)
	var me *ModelError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, ErrCodeDegenerateX, me.Code)
	assert.Contains(t, me.Message, "all 3 observations share x=1")

	parsed, err := dataset.Parse("1,10\n1,12\n1,14\n")
	require.NoError(t, err)
	_, err = Build(parsed)
	require.True(t, errors.As(err, &me))
	assert.Equal(t, ErrCodeDegenerateX, me.Code)
}

func TestBuild_ConstantY(t *testing.T) {
	m, err := Build(mustDataset(t, dataset.Observation{X: 1, Y: 5}, dataset.Observation{X: 2, Y: 5}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Scale().SDY)

	lp, err := m.LogDensity([]float64{0, 0, 0}, nil)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(lp))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m, err := Build(lineData(t))
	require.NoError(t, err)

	positions := [][]float64{
		{0, 0, 0},
		{0.3, -1.2, 0.5},
		{-2, 4, -3},
	}
	for _, pos := range positions {
		back := m.Encode(m.Decode(pos))
		for i := range pos {
			assert.InDelta(t, pos[i], back[i], 1e-9)
		}
	}

	p := Params{Intercept: 7.5, Slope: 2.1, LogNoiseScale: -0.4}
	q := m.Decode(m.Encode(p))
	assert.InDelta(t, p.Intercept, q.Intercept, 1e-9)
	assert.InDelta(t, p.Slope, q.Slope, 1e-9)
	assert.InDelta(t, p.LogNoiseScale, q.LogNoiseScale, 1e-9)
}

func TestDecode_OriginIsMeanLine(t *testing.T) {
	m, err := Build(lineData(t))
	require.NoError(t, err)

	p := m.Decode([]float64{0, 0, 0})
	s := m.Scale()
	assert.InDelta(t, 0.0, p.Slope, 1e-12)
	assert.InDelta(t, s.MeanY, p.At(s.MeanX), 1e-12)
	assert.InDelta(t, s.SDY, p.Sigma(), 1e-12)
}

func TestLogDensity_GradientMatchesFiniteDifference(t *testing.T) {
	m, err := Build(lineData(t))
	require.NoError(t, err)

	pos := []float64{0.2, 0.9, -0.7}
	grad := make([]float64, Dim)
	_, err = m.LogDensity(pos, grad)
	require.NoError(t, err)

	const h = 1e-6
	for i := 0; i < Dim; i++ {
		up := append([]float64(nil), pos...)
		dn := append([]float64(nil), pos...)
		up[i] += h
		dn[i] -= h
		lu, err := m.LogDensity(up, nil)
		require.NoError(t, err)
		ld, err := m.LogDensity(dn, nil)
		require.NoError(t, err)
		assert.InDelta(t, (lu-ld)/(2*h), grad[i], 1e-4, "coordinate %d", i)
	}
}

func TestLogDensity_PeaksNearLeastSquares(t *testing.T) {
	m, err := Build(lineData(t))
	require.NoError(t, err)

	// Standardized data is nearly perfectly correlated, so b near 1 beats b = 0.
	good, err := m.LogDensity([]float64{0, 0.99, -2}, nil)
	require.NoError(t, err)
	bad, err := m.LogDensity([]float64{0, 0, -2}, nil)
	require.NoError(t, err)
	assert.Greater(t, good, bad)
}

func TestLogDensity_Errors(t *testing.T) {
	m, err := Build(lineData(t))
	require.NoError(t, err)

	_, err = m.LogDensity([]float64{0, 0}, nil)
	var me *ModelError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, ErrCodeDimensionMismatch, me.Code)

	_, err = m.LogDensity([]float64{0, 0, 0}, make([]float64, 2))
	require.True(t, errors.As(err, &me))
	assert.Equal(t, ErrCodeDimensionMismatch, me.Code)

	_, err = m.LogDensity([]float64{math.NaN(), 0, 0}, nil)
	assert.True(t, IsNonFinite(err))

	_, err = m.LogDensity([]float64{0, math.Inf(1), 0}, nil)
	assert.True(t, IsNonFinite(err))

	assert.False(t, IsNonFinite(errors.New("other")))
}

func TestParams_AtAndSigma(t *testing.T) {
	p := Params{Intercept: 1, Slope: 2, LogNoiseScale: 0}
	assert.Equal(t, 7.0, p.At(3))
	assert.Equal(t, 1.0, p.Sigma())
}
