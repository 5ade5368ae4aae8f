package dataset

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_CommaAndWhitespace(t *testing.T) {
	ds, err := Parse("1,10\n2 12\n3\t14\n4 , 16\n")
	require.NoError(t, err)

	xs, ys := ds.Columns()
	assert.Equal(t, []float64{1, 2, 3, 4}, xs)
	assert.Equal(t, []float64{10, 12, 14, 16}, ys)
	assert.Empty(t, ds.Skipped())
	assert.Nil(t, ds.Header())
}

func TestParse_HeaderAndComments(t *testing.T) {
	ds, err := Parse("# station 42\nDATE,TMAX\n1,10\n# mid comment\n2,11\n")
	require.NoError(t, err)

	assert.Equal(t, []string{"DATE", "TMAX"}, ds.Header())
	assert.Equal(t, 2, ds.Len())
	assert.Empty(t, ds.Skipped())
}

func TestParse_CRLFAndBOM(t *testing.T) {
	ds, err := Parse("\ufeffx,y\r\n1,2\r\n3,4\r\n")
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []string{"x", "y"}, ds.Header())
}

func TestParse_FullWidthDigitsNormalized(t *testing.T) {
	// NFKC maps full-width digits and comma to ASCII.
	ds, err := Parse("１，１０\n２，１２\n")
	require.NoError(t, err)
	assert.Equal(t, Observation{X: 1, Y: 10}, ds.At(0))
	assert.Equal(t, Observation{X: 2, Y: 12}, ds.At(1))
}

func TestParse_MalformedLinesSkipped(t *testing.T) {
	raw := "1,10\nnot,a,row\n2,abc\n3,NaN\n4,16\n5\n"
	ds, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Len())
	skipped := ds.Skipped()
	require.Len(t, skipped, 4)
	assert.Equal(t, 2, skipped[0].Line)
	assert.Contains(t, skipped[0].Reason, "expected 2 fields")
	assert.Equal(t, 3, skipped[1].Line)
	assert.Contains(t, skipped[1].Reason, "bad y")
	assert.Equal(t, 4, skipped[2].Line)
	assert.Contains(t, skipped[2].Reason, "not finite")
	assert.Equal(t, 6, skipped[3].Line)
}

func TestParse_SortsByX(t *testing.T) {
	ds, err := Parse("3,30\n1,10\n2,20\n")
	require.NoError(t, err)

	xs, ys := ds.Columns()
	assert.Equal(t, []float64{1, 2, 3}, xs)
	assert.Equal(t, []float64{10, 20, 30}, ys)
}

func TestParse_DuplicateXKeepsFirst(t *testing.T) {
	ds, err := Parse("2,20\n1,10\n2,99\n3,30\n")
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, 1, ds.Duplicates())
	assert.Equal(t, Observation{X: 2, Y: 20}, ds.At(1))
}

func TestParse_IdenticalXKeepsOneObservation(t *testing.T) {
	ds, err := Parse("1,10\n1,12\n1,14\n")
	require.NoError(t, err)

	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, 2, ds.Duplicates())
	assert.Equal(t, Observation{X: 1, Y: 10}, ds.At(0))
}

func TestParse_DuplicateXRejected(t *testing.T) {
	_, err := Parse("1,10\n2,20\n1,11\n", WithDuplicatePolicy(RejectDuplicates))
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ErrCodeDuplicateX, pe.Code)
	assert.Equal(t, 3, pe.Line)
}

func TestParse_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code ParseErrorCode
	}{
		{"empty", "", ErrCodeEmptyInput},
		{"only header", "DATE,TMAX\n", ErrCodeEmptyInput},
		{"only garbage", "a b c\nfoo\n", ErrCodeEmptyInput},
		{"one row", "1,10\n", ErrCodeTooFewObservations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Parse(tt.raw)
			assert.Nil(t, ds)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.code, pe.Code)
			assert.True(t, IsParseError(err))
		})
	}
}

func TestParse_ExactlyTwoObservations(t *testing.T) {
	ds, err := Parse("1,10\n2,12\n")
	require.NoError(t, err)
	assert.Equal(t, MinObservations, ds.Len())
}

func TestParse_WithMinObservationsZero(t *testing.T) {
	ds, err := Parse("", WithMinObservations(0))
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())

	lo, hi := ds.XRange()
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func TestParse_ISODates(t *testing.T) {
	ds, err := Parse("0000-01-02,5\n0000-01-01,4\n")
	require.NoError(t, err)

	assert.Equal(t, 0.0, ds.At(0).X)
	assert.InDelta(t, 1/365.25, ds.At(1).X, 1e-12)
}

func TestParse_InvalidISODateSkipped(t *testing.T) {
	ds, err := Parse("2023-02-30,5\n1,2\n2,3\n")
	require.NoError(t, err)
	require.Len(t, ds.Skipped(), 1)
	assert.Contains(t, ds.Skipped()[0].Reason, "bad x")
}

func TestFractionalYear(t *testing.T) {
	y := FractionalYear(time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC))
	// 2000 years of 365.2425 days measured in 365.25-day years.
	assert.InDelta(t, 2000*365.2425/365.25, y, 1e-6)
}

func TestDataset_FormatRoundTrip(t *testing.T) {
	ds, err := Parse("DATE,TMAX\n2,12.5\n1,10\n")
	require.NoError(t, err)

	text := ds.Format()
	assert.Equal(t, "DATE,TMAX\n1,10\n2,12.5\n", text)

	again, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, ds.Observations(), again.Observations())
}

func TestDataset_AccessorsCopy(t *testing.T) {
	ds, err := Parse("1,10\n2,12\n")
	require.NoError(t, err)

	obs := ds.Observations()
	obs[0].Y = 999
	xs, _ := ds.Columns()
	xs[0] = 999

	assert.Equal(t, Observation{X: 1, Y: 10}, ds.At(0))
}

func TestNew_SortsAndRejectsNonFinite(t *testing.T) {
	ds, err := New([]Observation{{X: 2, Y: 1}, {X: 1, Y: 2}, {X: 2, Y: 3}})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, 1, ds.Duplicates())
	assert.Equal(t, Observation{X: 2, Y: 1}, ds.At(1))

	_, err = New([]Observation{{X: 1, Y: 1}, {X: 2, Y: math.NaN()}})
	require.Error(t, err)
}

func TestDataset_YRange(t *testing.T) {
	ds, err := Parse("1,10\n2,-3\n3,7\n")
	require.NoError(t, err)
	lo, hi := ds.YRange()
	assert.Equal(t, -3.0, lo)
	assert.Equal(t, 10.0, hi)
}
