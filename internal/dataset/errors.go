package dataset

import (
	"errors"
	"fmt"
)

// ParseErrorCode categorizes parse failures.
type ParseErrorCode string

const (
	// ErrCodeEmptyInput indicates the input held no usable rows at all.
	ErrCodeEmptyInput ParseErrorCode = "EMPTY_INPUT"

	// ErrCodeTooFewObservations indicates fewer than the minimum rows survived.
	ErrCodeTooFewObservations ParseErrorCode = "TOO_FEW_OBSERVATIONS"

	// ErrCodeDuplicateX indicates a repeated x under RejectDuplicates.
	ErrCodeDuplicateX ParseErrorCode = "DUPLICATE_X"

	// ErrCodeUnexpectedHeader indicates GHCN input with the wrong header.
	ErrCodeUnexpectedHeader ParseErrorCode = "UNEXPECTED_HEADER"

	// ErrCodeNonFinite indicates an in-memory observation holding NaN or Inf.
	ErrCodeNonFinite ParseErrorCode = "NON_FINITE"

	// ErrCodeInvalidDate indicates a date that is not a real calendar day.
	ErrCodeInvalidDate ParseErrorCode = "INVALID_DATE"
)

// ParseError reports why raw text could not become a Dataset.
type ParseError struct {
	Code    ParseErrorCode
	Message string

	// Line is the 1-based input line the error refers to (0 if none).
	Line int

	// Skipped is the number of malformed lines dropped before failing.
	Skipped int
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line)
	}
	if e.Skipped > 0 {
		msg = fmt.Sprintf("%s; %d malformed line(s) skipped", msg, e.Skipped)
	}
	return msg
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
