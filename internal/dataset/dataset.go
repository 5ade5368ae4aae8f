package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// MinObservations is the smallest dataset a line can be fitted to.
const MinObservations = 2

// Observation is one (x, y) point. X is an ordinal such as fractional
// years or a day index; Y is the measured value.
type Observation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SkippedLine records a malformed input line that was dropped.
type SkippedLine struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Dataset is an immutable, x-ordered sequence of observations.
type Dataset struct {
	obs        []Observation
	header     []string
	skipped    []SkippedLine
	duplicates int
}

// New builds a Dataset from observations already in memory.
// Observations are stable-sorted by x and later duplicates dropped.
// Non-finite values are rejected.
func New(obs []Observation) (*Dataset, error) {
	for i, o := range obs {
		if !isFinite(o.X) || !isFinite(o.Y) {
			return nil, &ParseError{
				Code:    ErrCodeNonFinite,
				Message: fmt.Sprintf("observation %d is not finite", i),
			}
		}
	}
	cp := make([]Observation, len(obs))
	copy(cp, obs)
	sorted, dups := sortAndDedupe(cp)
	return &Dataset{obs: sorted, duplicates: dups}, nil
}

// Len returns the number of observations.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.obs)
}

// At returns the i-th observation in x order.
func (d *Dataset) At(i int) Observation {
	return d.obs[i]
}

// Observations returns a copy of the ordered observations.
func (d *Dataset) Observations() []Observation {
	if d == nil {
		return nil
	}
	out := make([]Observation, len(d.obs))
	copy(out, d.obs)
	return out
}

// Columns returns copies of the x and y columns.
func (d *Dataset) Columns() (xs, ys []float64) {
	if d == nil {
		return nil, nil
	}
	xs = make([]float64, len(d.obs))
	ys = make([]float64, len(d.obs))
	for i, o := range d.obs {
		xs[i] = o.X
		ys[i] = o.Y
	}
	return xs, ys
}

// XRange returns the smallest and largest x. Both are zero for an empty dataset.
func (d *Dataset) XRange() (lo, hi float64) {
	if d.Len() == 0 {
		return 0, 0
	}
	return d.obs[0].X, d.obs[len(d.obs)-1].X
}

// YRange returns the smallest and largest y.
func (d *Dataset) YRange() (lo, hi float64) {
	if d.Len() == 0 {
		return 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, o := range d.obs {
		lo = math.Min(lo, o.Y)
		hi = math.Max(hi, o.Y)
	}
	return lo, hi
}

// Header returns the detected header fields, or nil.
func (d *Dataset) Header() []string {
	if d == nil || d.header == nil {
		return nil
	}
	return append([]string(nil), d.header...)
}

// Skipped returns the malformed lines dropped while parsing.
func (d *Dataset) Skipped() []SkippedLine {
	if d == nil || d.skipped == nil {
		return nil
	}
	return append([]SkippedLine(nil), d.skipped...)
}

// Duplicates returns how many rows were dropped for repeating an x value.
func (d *Dataset) Duplicates() int {
	if d == nil {
		return 0
	}
	return d.duplicates
}

// Format renders the dataset as normalized "x,y" text with a header line.
func (d *Dataset) Format() string {
	var b strings.Builder
	if len(d.header) == 2 {
		b.WriteString(d.header[0])
		b.WriteByte(',')
		b.WriteString(d.header[1])
	} else {
		b.WriteString("x,y")
	}
	b.WriteByte('\n')
	for _, o := range d.obs {
		b.WriteString(formatFloat(o.X))
		b.WriteByte(',')
		b.WriteString(formatFloat(o.Y))
		b.WriteByte('\n')
	}
	return b.String()
}

// sortAndDedupe stable-sorts by x and drops later rows with an equal x.
func sortAndDedupe(obs []Observation) ([]Observation, int) {
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].X < obs[j].X })
	out := obs[:0]
	dups := 0
	for i, o := range obs {
		if i > 0 && len(out) > 0 && out[len(out)-1].X == o.X {
			dups++
			continue
		}
		out = append(out, o)
	}
	return out, dups
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
