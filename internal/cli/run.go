package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tmaxfit/internal/config"
	"github.com/roach88/tmaxfit/internal/ident"
	"github.com/roach88/tmaxfit/internal/metrics"
	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/render"
	"github.com/roach88/tmaxfit/internal/sampler"
	"github.com/roach88/tmaxfit/internal/sampler/hmc"
	"github.com/roach88/tmaxfit/internal/session"
	"github.com/roach88/tmaxfit/internal/store"
)

// samplerName is recorded with every stored run; replay refuses runs
// drawn by any other sampler.
const samplerName = "hmc"

// Surface IDs the run command binds its plots to.
const (
	traceSurfaceID = "trace"
	fitSurfaceID   = "fit"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database     string
	NoStore      bool
	Seed         uint64
	Chains       uint64
	Tuning       uint64
	Samples      uint64
	StepBudget   uint64
	TraceOut     string
	FitOut       string
	PosteriorOut string
	MetricsOut   string

	// Sampler allows overriding the sampler (for testing).
	// If nil, defaults to hmc.New().
	Sampler sampler.Sampler

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs ident.IDGenerator
}

// RunReport is the data payload of the run command.
type RunReport struct {
	RunID       string                   `json:"run_id"`
	RunKey      string                   `json:"run_key,omitempty"`
	Status      session.Status           `json:"status"`
	ElapsedNS   int64                    `json:"elapsed_ns"`
	ErrorCode   string                   `json:"error_code,omitempty"`
	Error       string                   `json:"error,omitempty"`
	RenderError string                   `json:"render_error,omitempty"`
	Chains      int                      `json:"chains"`
	Draws       int                      `json:"draws"`
	Divergent   int                      `json:"divergent"`
	Params      []posterior.ParamSummary `json:"params,omitempty"`
	TraceOut    string                   `json:"trace_out,omitempty"`
	FitOut      string                   `json:"fit_out,omitempty"`
	Database    string                   `json:"db,omitempty"`
	Seq         int64                    `json:"seq,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <input-file|->",
		Short: "Sample the posterior of a TMAX series",
		Long: `Fit the linear trend model to an input table.

Runs every chain in order, summarizes the post-tuning draws into a
posterior fit with a credible band and draws the trace and fit plots.
Each run is stored in the SQLite database with its draws so it can be
replayed later; pass --no-store to skip that.

Ctrl-C cancels the run at the next chain boundary.

Exit codes:
  0 - Run succeeded
  1 - Run failed or was cancelled
  2 - Command error (unreadable input, invalid config, database error)

Examples:
  tmaxfit run tmax.csv --trace-out trace.png --fit-out fit.png
  tmaxfit run station.csv --chains 8 --samples 2000 --db ./runs.db
  tmaxfit run tmax.csv --config run.cue --format json --no-store`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().BoolVar(&opts.NoStore, "no-store", false, "do not store the run")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "base seed (default from config)")
	cmd.Flags().Uint64Var(&opts.Chains, "chains", 0, "number of chains (default from config)")
	cmd.Flags().Uint64Var(&opts.Tuning, "tuning", 0, "tuning steps per chain (default from config)")
	cmd.Flags().Uint64Var(&opts.Samples, "samples", 0, "sampling steps per chain (default from config)")
	cmd.Flags().Uint64Var(&opts.StepBudget, "step-budget", 0, "maximum total sampler steps (default from config)")
	cmd.Flags().StringVar(&opts.TraceOut, "trace-out", "", "write the trace plot to a PNG file")
	cmd.Flags().StringVar(&opts.FitOut, "fit-out", "", "write the fit plot to a PNG file")
	cmd.Flags().StringVar(&opts.PosteriorOut, "posterior-out", "", "write a posterior sample CSV")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write Prometheus metrics to a textfile")

	return cmd
}

// applyRunFlags layers explicitly set flags over cfg.
func applyRunFlags(cmd *cobra.Command, opts *RunOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = opts.Database
	}
	if flags.Changed("seed") {
		cfg.Seed = opts.Seed
	}
	if flags.Changed("chains") {
		cfg.Chains = opts.Chains
	}
	if flags.Changed("tuning") {
		cfg.Tuning = opts.Tuning
	}
	if flags.Changed("samples") {
		cfg.Samples = opts.Samples
	}
	if flags.Changed("step-budget") {
		cfg.StepBudget = opts.StepBudget
	}
	if flags.Changed("metrics-out") {
		cfg.MetricsOut = opts.MetricsOut
	}
}

func runFit(opts *RunOptions, inputPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, opts, cfg)
	if err := cfg.Validate(); err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)

	raw, err := readInput(cmd, inputPath)
	if err != nil {
		return err
	}

	smp := opts.Sampler
	if smp == nil {
		smp = hmc.New()
	}
	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = ident.UUIDv7Generator{}
	}

	surfaces := render.NewSurfaces()
	surfaces.Register(traceSurfaceID, plotSurface(opts.TraceOut, cfg))
	surfaces.Register(fitSurfaceID, plotSurface(opts.FitOut, cfg))

	recorder := metrics.New()
	sess := session.New(smp,
		session.WithLogger(logger),
		session.WithRunIDs(runIDs),
		session.WithSurfaces(surfaces),
		session.WithStepBudget(cfg.StepBudget),
		session.WithRetainDraws(true),
		session.WithObserver(recorder),
		session.WithSummaryOptions(cfg.SummaryOptions()...),
	)

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	logger.Info("run starting",
		"input", inputPath,
		"seed", cfg.Seed,
		"chains", cfg.Chains,
		"tuning", cfg.Tuning,
		"samples", cfg.Samples,
	)
	out := sess.RunWith(ctx, session.RunRequest{
		TraceSurface:     traceSurfaceID,
		PosteriorSurface: fitSurfaceID,
		Seed:             cfg.Seed,
		Input:            raw,
		ChainCount:       cfg.Chains,
		TuningSteps:      cfg.Tuning,
		SampleSteps:      cfg.Samples,
	})

	report := newRunReport(out)
	if out.RenderError == "" {
		report.TraceOut, report.FitOut = opts.TraceOut, opts.FitOut
	}

	if cfg.MetricsOut != "" {
		if err := recorder.WriteTextfile(cfg.MetricsOut); err != nil {
			logger.Warn("failed to write metrics", "path", cfg.MetricsOut, "error", err)
		}
	}

	if opts.PosteriorOut != "" && out.Status == session.StatusOK {
		if err := os.WriteFile(opts.PosteriorOut, []byte(out.PosteriorCSV), 0644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write posterior sample", err)
		}
	}

	if !opts.NoStore && out.Dataset != nil {
		key, seq, err := persistRun(ctx, cfg, out, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to store run", err)
		}
		report.RunKey, report.Seq, report.Database = key, seq, cfg.DBPath
	}

	if err := outputRunReport(formatter, report); err != nil {
		return err
	}

	switch out.Status {
	case session.StatusCancelled:
		return WrapExitError(ExitFailure, "run cancelled", out.Err)
	case session.StatusError:
		return WrapExitError(ExitFailure, "run failed", out.Err)
	}
	return nil
}

// plotSurface writes to path when set and renders off-screen otherwise.
func plotSurface(path string, cfg *config.Config) render.Surface {
	if path == "" {
		return render.NewMemorySurface(cfg.PlotWidth, cfg.PlotHeight)
	}
	return &render.FileSurface{Path: path, Width: cfg.PlotWidth, Height: cfg.PlotHeight}
}

// persistRun stores the run's dataset and the run itself. The run key
// ties the run to its dataset digest and config so replay can find
// runs that must agree bit for bit.
func persistRun(ctx context.Context, cfg *config.Config, out *session.RunOutcome, logger *slog.Logger) (string, int64, error) {
	// A cancelled run still gets stored; the write itself must not be cut short.
	ctx = context.WithoutCancel(ctx)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	digest, err := st.WriteDataset(ctx, out.Dataset)
	if err != nil {
		return "", 0, err
	}
	rc := cfg.RunConfig()
	key, err := ident.RunKey(digest, rc.BaseSeed, rc.ChainCount, rc.TuningSteps, rc.SampleSteps)
	if err != nil {
		return "", 0, err
	}

	rec := store.RunRecord{
		ID:            out.RunID,
		RunKey:        key,
		DatasetDigest: digest,
		Config:        rc,
		Sampler:       samplerName,
		Status:        string(out.Status),
		Error:         out.Error,
		Elapsed:       out.Elapsed,
	}
	var fit []posterior.FitPoint
	if out.Summary != nil {
		rec.Params = out.Summary.Params
		fit = out.Summary.Fit
	}

	seq, inserted, err := st.WriteRun(ctx, rec, out.Result, fit)
	if err != nil {
		return "", 0, err
	}
	logger.Debug("run stored", "run_id", rec.ID, "seq", seq, "inserted", inserted, "db", cfg.DBPath)
	return key, seq, nil
}

func newRunReport(out *session.RunOutcome) RunReport {
	report := RunReport{
		RunID:       out.RunID,
		Status:      out.Status,
		ElapsedNS:   out.Elapsed.Nanoseconds(),
		Error:       out.Error,
		ErrorCode:   ErrorCode(out.Err),
		RenderError: out.RenderError,
	}
	if out.Summary != nil {
		report.Chains = len(out.Summary.Chains())
		report.Draws = out.Summary.Draws
		report.Params = out.Summary.Params
	}
	if out.Result != nil {
		report.Divergent = out.Result.DivergentCount()
	}
	return report
}

func outputRunReport(formatter *OutputFormatter, report RunReport) error {
	if formatter.Format == "json" {
		if report.Status == session.StatusOK {
			return formatter.Success(report)
		}
		return formatter.Error(report.ErrorCode, report.Error, report)
	}

	w := formatter.Writer
	elapsed := time.Duration(report.ElapsedNS).Round(time.Millisecond)
	fmt.Fprintf(w, "Run %s %s in %s\n", report.RunID, report.Status, elapsed)
	if report.Status != session.StatusOK {
		fmt.Fprintf(w, "  Error [%s]: %s\n", report.ErrorCode, report.Error)
	} else {
		fmt.Fprintf(w, "  draws: %d post-tuning across %d chains, %d divergent\n",
			report.Draws, report.Chains, report.Divergent)
		writeParamTable(w, report.Params)
	}
	if report.RenderError != "" {
		fmt.Fprintf(w, "  plot error: %s\n", report.RenderError)
	}
	if report.TraceOut != "" {
		fmt.Fprintf(w, "  trace plot: %s\n", report.TraceOut)
	}
	if report.FitOut != "" {
		fmt.Fprintf(w, "  fit plot:   %s\n", report.FitOut)
	}
	if report.Database != "" {
		fmt.Fprintf(w, "  stored:     %s (seq %d)\n", report.Database, report.Seq)
	}
	return nil
}

// writeParamTable prints one row per parameter summary.
func writeParamTable(w io.Writer, params []posterior.ParamSummary) {
	fmt.Fprintf(w, "  %-16s %10s %10s %10s %10s %6s\n", "param", "mean", "sd", "lower", "upper", "rhat")
	for _, p := range params {
		rhat := "-"
		if p.RHat != nil {
			rhat = fmt.Sprintf("%.3f", *p.RHat)
		}
		fmt.Fprintf(w, "  %-16s %10.4f %10.4f %10.4f %10.4f %6s\n", p.Name, p.Mean, p.SD, p.Lower, p.Upper, rhat)
	}
}
