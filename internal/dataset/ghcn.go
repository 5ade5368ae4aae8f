package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GHCNHeader is the header line of a NOAA GHCN-Daily CSV export.
const GHCNHeader = "ID,DATE,ELEMENT,DATA_VALUE,M_FLAG,Q_FLAG,S_FLAG,OBS_TIME"

// PreparedHeader is the header PrepareGHCN writes.
const PreparedHeader = "DATE,TMAX"

const ghcnDateLayout = "20060102"

// IsGHCN reports whether raw starts with the GHCN-Daily header.
func IsGHCN(raw string) bool {
	first, _, _ := strings.Cut(strings.TrimPrefix(raw, "\ufeff"), "\n")
	return strings.TrimSpace(first) == GHCNHeader
}

// PrepareGHCN converts GHCN-Daily CSV into DATE,TMAX text.
//
// Only TMAX rows without a quality flag are kept. Values are tenths of a
// degree and are scaled to degrees; dates become fractional years.
// Rows too short to hold a quality flag, or with a non-integer value, are
// dropped.
func PrepareGHCN(raw string) (string, error) {
	lines := strings.Split(strings.TrimPrefix(raw, "\ufeff"), "\n")
	if strings.TrimSpace(lines[0]) != GHCNHeader {
		return "", &ParseError{
			Code:    ErrCodeUnexpectedHeader,
			Message: fmt.Sprintf("want %q", GHCNHeader),
			Line:    1,
		}
	}

	var b strings.Builder
	b.WriteString(PreparedHeader)
	b.WriteByte('\n')

	for i, line := range lines[1:] {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}
		f := strings.Split(line, ",")
		if len(f) < 6 || f[2] != "TMAX" || f[5] != "" {
			continue
		}
		tenths, err := strconv.ParseInt(strings.TrimSpace(f[3]), 10, 64)
		if err != nil {
			continue
		}
		date, err := time.Parse(ghcnDateLayout, f[1])
		if err != nil {
			return "", &ParseError{
				Code:    ErrCodeInvalidDate,
				Message: fmt.Sprintf("bad date %q", f[1]),
				Line:    i + 2,
			}
		}
		b.WriteString(formatFloat(FractionalYear(date)))
		b.WriteByte(',')
		b.WriteString(formatFloat(float64(tenths) / 10))
		b.WriteByte('\n')
	}
	return b.String(), nil
}
