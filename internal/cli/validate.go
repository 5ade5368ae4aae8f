package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tmaxfit/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Settings *config.Config   `json:"settings,omitempty"`
	Errors   []ValidationItem `json:"errors,omitempty"`
}

// ValidationItem is one problem found in a run file.
type ValidationItem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <run-file>",
		Short: "Validate a CUE run file without sampling",
		Long: `Validate a CUE run file against the run schema.

Checks syntax, field names and value ranges, then validates the settings
the file resolves to once defaults and TMAXFIT_* environment variables
are layered underneath. Nothing is sampled.

Example:
  tmaxfit validate run.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, runFile string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	formatter.VerboseLog("Validating %s", runFile)

	cfg, err := config.Load(runFile)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		item := validationItem(err)
		if opts.Format == "json" {
			_ = formatter.Error(item.Code, item.Message, ValidationResult{Valid: false, Errors: []ValidationItem{item}})
		} else {
			_ = formatter.Error(item.Code, item.Message, nil)
			if item.Line > 0 {
				fmt.Fprintf(formatter.Writer, "  at %s:%d\n", runFile, item.Line)
			}
		}
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Settings: cfg})
	}
	return formatter.Success(fmt.Sprintf("✓ %s is valid (seed=%d chains=%d tuning=%d samples=%d)",
		runFile, cfg.Seed, cfg.Chains, cfg.Tuning, cfg.Samples))
}

// validationItem converts a config error, keeping its source line.
func validationItem(err error) ValidationItem {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		item := ValidationItem{Code: cfgErr.Code, Message: cfgErr.Message}
		if cfgErr.Pos.IsValid() {
			item.Line = cfgErr.Pos.Line()
		}
		return item
	}
	return ValidationItem{Code: ErrorCode(err), Message: err.Error()}
}
