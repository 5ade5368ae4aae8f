package render

import (
	"errors"
	"fmt"
)

// RenderErrorCode classifies render failures.
type RenderErrorCode string

const (
	// CodeUnknownSurface: no surface registered under the given ID.
	CodeUnknownSurface RenderErrorCode = "UNKNOWN_SURFACE"

	// CodeBadSurface: the surface is nil or has a non-positive size.
	CodeBadSurface RenderErrorCode = "BAD_SURFACE"

	// CodeUnknownParam: a trace was requested for a parameter that does
	// not exist.
	CodeUnknownParam RenderErrorCode = "UNKNOWN_PARAM"

	// CodeChartFailed: the chart library panicked.
	CodeChartFailed RenderErrorCode = "CHART_FAILED"

	// CodePresentFailed: the surface refused the finished image.
	CodePresentFailed RenderErrorCode = "PRESENT_FAILED"
)

// RenderError reports a drawing failure. The numeric results a plot was
// drawn from stay valid when one occurs.
type RenderError struct {
	Code    RenderErrorCode
	Message string
	Err     error
}

func (e *RenderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("render %s: %s", e.Code, e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// IsRenderError reports whether err is a *RenderError.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}

// IsUnknownSurface reports whether err is an UNKNOWN_SURFACE render error.
func IsUnknownSurface(err error) bool {
	var re *RenderError
	return errors.As(err, &re) && re.Code == CodeUnknownSurface
}
