package posterior

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/tmaxfit/internal/model"
)

// CSVHeader is the header of a posterior sample table. ALPHA is the
// intercept, BETA the slope and SIGMA the noise scale.
const CSVHeader = "ALPHA,BETA,SIGMA"

// DefaultSampleSize is how many draws a run exports for plotting.
const DefaultSampleSize = 10

// ErrBadCSV marks a posterior sample table that cannot be read.
var ErrBadCSV = errors.New("posterior: malformed sample table")

// csvColumns is CSVHeader split into fields.
var csvColumns = strings.Split(CSVHeader, ",")

// FormatCSV renders draws as an ALPHA,BETA,SIGMA table.
func FormatCSV(draws []model.Params) string {
	var b strings.Builder
	// Writes to a strings.Builder cannot fail.
	w := csv.NewWriter(&b)
	w.Write(csvColumns)
	for _, p := range draws {
		w.Write([]string{
			strconv.FormatFloat(p.Intercept, 'g', -1, 64),
			strconv.FormatFloat(p.Slope, 'g', -1, 64),
			strconv.FormatFloat(p.Sigma(), 'g', -1, 64),
		})
	}
	w.Flush()
	return b.String()
}

// ParseCSV reads an ALPHA,BETA,SIGMA table. Blank lines are ignored and
// the header is matched without regard to case or spacing.
func ParseCSV(text string) ([]model.Params, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := nextRecord(r)
	if err == io.EOF || (err == nil && !isCSVHeader(header)) {
		return nil, fmt.Errorf("%w: missing %s header", ErrBadCSV, CSVHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCSV, err)
	}

	var out []model.Params
	for {
		rec, err := nextRecord(r)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCSV, err)
		}
		lineNo, _ := r.FieldPos(0)
		if len(rec) != len(csvColumns) {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrBadCSV, lineNo, len(rec))
		}
		var v [3]float64
		for k := range rec {
			x, err := strconv.ParseFloat(strings.TrimSpace(rec[k]), 64)
			if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("%w: line %d field %d is not a finite number", ErrBadCSV, lineNo, k+1)
			}
			v[k] = x
		}
		if v[2] <= 0 {
			return nil, fmt.Errorf("%w: line %d has non-positive SIGMA", ErrBadCSV, lineNo)
		}
		out = append(out, model.Params{Intercept: v[0], Slope: v[1], LogNoiseScale: math.Log(v[2])})
	}
}

// nextRecord returns the next record that is not whitespace only.
func nextRecord(r *csv.Reader) ([]string, error) {
	for {
		rec, err := r.Read()
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		return rec, nil
	}
}

func isCSVHeader(rec []string) bool {
	if len(rec) != len(csvColumns) {
		return false
	}
	for i, f := range rec {
		if !strings.EqualFold(strings.TrimSpace(f), csvColumns[i]) {
			return false
		}
	}
	return true
}
