package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tmaxfit/internal/sampler/hmc"
	"github.com/roach88/tmaxfit/internal/session"
)

// PrepareOptions holds flags for the prepare command.
type PrepareOptions struct {
	*RootOptions
	Output string
}

// NewPrepareCommand creates the prepare command.
func NewPrepareCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PrepareOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prepare <input-file|->",
		Short: "Normalize input into a DATE,TMAX table",
		Long: `Parse an input table and print it back normalized.

GHCN-Daily CSV exports are converted to DATE,TMAX with fractional-year
dates. Rows are sorted by date; malformed lines are skipped and the first
of any duplicate dates is kept.

Examples:
  tmaxfit prepare station.csv
  tmaxfit prepare station.csv -o tmax.csv
  cat station.csv | tmaxfit prepare - --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the normalized table to a file")

	return cmd
}

func runPrepare(opts *PrepareOptions, inputPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)

	raw, err := readInput(cmd, inputPath)
	if err != nil {
		return err
	}

	sess := session.New(hmc.New(), session.WithLogger(logger))
	prepared, err := sess.Prepare(raw)
	if err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to prepare input", err)
	}

	for _, sk := range prepared.Skipped {
		formatter.VerboseLog("skipped line %d: %s", sk.Line, sk.Reason)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(prepared.Text), 0644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		formatter.VerboseLog("wrote %d observations to %s", prepared.Observations, opts.Output)
	}

	if opts.Format == "json" {
		return formatter.Success(prepared)
	}
	if opts.Output == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), prepared.Text)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d observations, %d skipped, %d duplicates\n",
		prepared.Observations, len(prepared.Skipped), prepared.Duplicates)
	return nil
}
