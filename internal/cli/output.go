package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/tmaxfit/internal/config"
	"github.com/roach88/tmaxfit/internal/dataset"
	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/model"
	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/render"
	"github.com/roach88/tmaxfit/internal/session"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Run failure (failed or cancelled run, scenarios failed, non-deterministic replay)
	ExitCommandError = 2 // Command error (bad input file, invalid config, database not found, etc.)
)

// Error codes for CLI responses that do not come from a typed error.
const (
	ErrCodeGeneric  = "ERROR"
	ErrCodeIO       = "IO_ERROR"
	ErrCodeStore    = "STORE_ERROR"
	ErrCodeSampler  = "SAMPLER_FAILED"
	ErrCodeNoDraws  = "NO_DRAWS"
	ErrCodeBusy     = "SESSION_BUSY"
	ErrCodeMismatch = "REPLAY_MISMATCH"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string      `json:"status"`            // "ok" or "error"
	Data    interface{} `json:"data,omitempty"`    // success payload
	Error   *CLIError   `json:"error,omitempty"`   // error details
	TraceID string      `json:"trace_id,omitempty"` // optional trace correlation
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "TOO_FEW_OBSERVATIONS", "CONFIG_SCHEMA", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// ErrorCode returns the stable code of err for CLI responses. Typed
// errors carry their own code; anything else maps to ErrCodeGeneric.
func ErrorCode(err error) string {
	var (
		cfgErr    *config.Error
		parseErr  *dataset.ParseError
		modelErr  *model.ModelError
		runErr    *engine.RunError
		smpErr    *engine.SamplerError
		renderErr *render.RenderError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return cfgErr.Code
	case errors.As(err, &parseErr):
		return string(parseErr.Code)
	case errors.As(err, &modelErr):
		return string(modelErr.Code)
	case errors.As(err, &runErr):
		return string(runErr.Code)
	case errors.As(err, &smpErr):
		return ErrCodeSampler
	case errors.As(err, &renderErr):
		return string(renderErr.Code)
	case errors.Is(err, posterior.ErrNoDraws):
		return ErrCodeNoDraws
	case errors.Is(err, session.ErrBusy):
		return ErrCodeBusy
	default:
		return ErrCodeGeneric
	}
}
