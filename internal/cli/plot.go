package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tmaxfit/internal/render"
	"github.com/roach88/tmaxfit/internal/sampler/hmc"
	"github.com/roach88/tmaxfit/internal/session"
)

// PlotOptions holds flags for the plot command.
type PlotOptions struct {
	*RootOptions
	Output    string
	Posterior string
}

// PlotResult is the data payload of the plot command.
type PlotResult struct {
	Output    string `json:"output"`
	Posterior string `json:"posterior,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// NewPlotCommand creates the plot command.
func NewPlotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plot <input-file|->",
		Short: "Draw observations and posterior regression lines",
		Long: `Draw the observations of an input table to a PNG file.

With --posterior, one regression line is drawn per row of an
ALPHA,BETA,SIGMA posterior sample, as written by run --posterior-out.
Without it only the observations are drawn, which works for tables with
fewer rows than a fit needs.

Examples:
  tmaxfit plot tmax.csv -o tmax.png
  tmaxfit plot tmax.csv --posterior posterior.csv -o fit.png`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlot(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "PNG file to write (required)")
	_ = cmd.MarkFlagRequired("output")
	cmd.Flags().StringVar(&opts.Posterior, "posterior", "", "posterior sample CSV to overlay")

	return cmd
}

func runPlot(opts *PlotOptions, inputPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)

	raw, err := readInput(cmd, inputPath)
	if err != nil {
		return err
	}
	posteriorCSV := ""
	if opts.Posterior != "" {
		if posteriorCSV, err = readInput(cmd, opts.Posterior); err != nil {
			return err
		}
	}

	sess := session.New(hmc.New(), session.WithLogger(logger))
	sess.Surfaces().Register(fitSurfaceID, &render.FileSurface{
		Path:   opts.Output,
		Width:  cfg.PlotWidth,
		Height: cfg.PlotHeight,
	})

	if err := sess.PlotCSV(fitSurfaceID, posteriorCSV, raw); err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "plot failed", err)
	}

	result := PlotResult{
		Output:    opts.Output,
		Posterior: opts.Posterior,
		Width:     cfg.PlotWidth,
		Height:    cfg.PlotHeight,
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("Wrote %dx%d plot to %s", result.Width, result.Height, result.Output))
}
