package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/tmaxfit/internal/posterior"
)

// encodeSeed stores a seed as decimal text. SQLite integers are signed
// 64-bit, so seeds at or above 2^63 would not survive an INTEGER column.
func encodeSeed(seed uint64) string {
	return strconv.FormatUint(seed, 10)
}

func decodeSeed(text string) (uint64, error) {
	seed, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode seed %q: %w", text, err)
	}
	return seed, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// marshalParams converts parameter summaries to JSON TEXT.
// HTML escaping is disabled so names are stored as written.
func marshalParams(params []posterior.ParamSummary) (string, error) {
	if params == nil {
		params = []posterior.ParamSummary{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(params); err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalParams parses JSON TEXT to parameter summaries.
func unmarshalParams(data string) ([]posterior.ParamSummary, error) {
	if data == "" || data == "[]" {
		return []posterior.ParamSummary{}, nil
	}
	var params []posterior.ParamSummary
	if err := json.Unmarshal([]byte(data), &params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return params, nil
}
