package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DuplicatePolicy selects what Parse does with rows that repeat an x value.
type DuplicatePolicy int

const (
	// DropDuplicates keeps the first row (in input order) for each x.
	DropDuplicates DuplicatePolicy = iota

	// RejectDuplicates fails the parse on the first repeated x.
	RejectDuplicates
)

type parseOptions struct {
	duplicates DuplicatePolicy
	minObs     int
}

// Option configures Parse.
type Option func(*parseOptions)

// WithDuplicatePolicy sets the duplicate-x policy. Default DropDuplicates.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(o *parseOptions) { o.duplicates = p }
}

// WithMinObservations overrides MinObservations. Zero accepts empty input,
// which plotting uses to draw axes for whatever the user pasted.
func WithMinObservations(n int) Option {
	return func(o *parseOptions) {
		if n >= 0 {
			o.minObs = n
		}
	}
}

// Parse reads raw text into a Dataset.
func Parse(raw string, opts ...Option) (*Dataset, error) {
	o := parseOptions{duplicates: DropDuplicates, minObs: MinObservations}
	for _, opt := range opts {
		opt(&o)
	}

	text := norm.NFKC.String(strings.TrimPrefix(raw, "\ufeff"))
	lines := strings.Split(text, "\n")

	ds := &Dataset{}
	var obs []Observation
	seenData := false
	firstX := make(map[float64]int)

	for i, line := range lines {
		lineNo := i + 1
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := splitFields(line)

		// Only the first meaningful line may be a header.
		if !seenData && ds.header == nil && len(fields) > 0 && !looksNumeric(fields[0]) {
			ds.header = fields
			seenData = true
			continue
		}
		seenData = true

		ob, reason := parseRecord(fields)
		if reason != "" {
			ds.skipped = append(ds.skipped, SkippedLine{Line: lineNo, Text: line, Reason: reason})
			continue
		}

		if prev, dup := firstX[ob.X]; dup {
			if o.duplicates == RejectDuplicates {
				return nil, &ParseError{
					Code:    ErrCodeDuplicateX,
					Message: fmt.Sprintf("x=%s repeats line %d", formatFloat(ob.X), prev),
					Line:    lineNo,
					Skipped: len(ds.skipped),
				}
			}
			ds.duplicates++
			continue
		}
		firstX[ob.X] = lineNo
		obs = append(obs, ob)
	}

	// Rows that all share one x collapse to a single observation. That is
	// a degenerate covariate, not a short series, so the model rejects it.
	collapsed := len(obs) == 1 && ds.duplicates > 0
	if len(obs) < o.minObs && !collapsed {
		if len(obs) == 0 {
			return nil, &ParseError{
				Code:    ErrCodeEmptyInput,
				Message: "no numeric x,y rows found",
				Skipped: len(ds.skipped),
			}
		}
		return nil, &ParseError{
			Code:    ErrCodeTooFewObservations,
			Message: fmt.Sprintf("need at least %d observations, got %d", o.minObs, len(obs)),
			Skipped: len(ds.skipped),
		}
	}

	// Duplicates were removed above, so this only orders.
	ds.obs, _ = sortAndDedupe(obs)
	return ds, nil
}

// splitFields splits on commas when present, otherwise on whitespace.
func splitFields(line string) []string {
	if strings.Contains(line, ",") {
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return strings.Fields(line)
}

func parseRecord(fields []string) (Observation, string) {
	if len(fields) != 2 {
		return Observation{}, fmt.Sprintf("expected 2 fields, got %d", len(fields))
	}
	x, err := parseX(fields[0])
	if err != nil {
		return Observation{}, fmt.Sprintf("bad x %q: %v", fields[0], err)
	}
	y, err := parseNumber(fields[1])
	if err != nil {
		return Observation{}, fmt.Sprintf("bad y %q: %v", fields[1], err)
	}
	return Observation{X: x, Y: y}, ""
}

func parseX(s string) (float64, error) {
	if isISODate(s) {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return 0, err
		}
		return FractionalYear(t), nil
	}
	return parseNumber(s)
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if !isFinite(v) {
		return 0, fmt.Errorf("not finite")
	}
	return v, nil
}

func looksNumeric(s string) bool {
	if isISODate(s) {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isISODate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, c := range s {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

const secondsPerYear = 365.25 * 86400

var yearZero = time.Date(0, time.January, 1, 0, 0, 0, 0, time.UTC)

// FractionalYear converts a date to years elapsed since 0000-01-01,
// using a 365.25-day year.
func FractionalYear(t time.Time) float64 {
	secs := t.UTC().Unix() - yearZero.Unix()
	return float64(secs) / secondsPerYear
}
