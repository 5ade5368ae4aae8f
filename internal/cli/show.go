package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	Limit    int
	Delete   bool
}

// RunRow is one line of the run listing.
type RunRow struct {
	Seq       int64  `json:"seq"`
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	Seed      string `json:"seed"`
	Chains    uint64 `json:"chains"`
	Tuning    uint64 `json:"tuning"`
	Samples   uint64 `json:"samples"`
	ElapsedNS int64  `json:"elapsed_ns"`
	Error     string `json:"error,omitempty"`
}

// RunDetail is the full view of one stored run.
type RunDetail struct {
	RunRow
	RunKey        string                   `json:"run_key"`
	DatasetDigest string                   `json:"dataset_digest"`
	Sampler       string                   `json:"sampler"`
	DrawsDigest   string                   `json:"draws_digest,omitempty"`
	Observations  int                      `json:"observations"`
	Draws         DrawStats                `json:"draws"`
	Params        []posterior.ParamSummary `json:"params"`
	Fit           []posterior.FitPoint     `json:"fit,omitempty"`
}

// DrawStats holds summary statistics for the stored draws of a run.
type DrawStats struct {
	Tuning    int `json:"tuning"`
	Sampling  int `json:"sampling"`
	Divergent int `json:"divergent"`
}

// RunDeletion is the result of show --delete.
type RunDeletion struct {
	RunID          string `json:"run_id"`
	DatasetRemoved bool   `json:"dataset_removed"`
}

// RunListing holds the run listing output.
type RunListing struct {
	Runs  []RunRow `json:"runs"`
	Total int      `json:"total"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "List stored runs or show one run",
		Long: `List the runs stored in the database in the order they were written,
or show a single run with its parameter summaries, draw counts and fit
curve endpoints. With --delete the named run is removed together with
its draws and fit curve, and its dataset once no other run uses it.

Examples:
  tmaxfit show --db ./tmaxfit.db
  tmaxfit show --db ./tmaxfit.db --limit 5
  tmaxfit show --db ./tmaxfit.db 0192f0c4-... --format json
  tmaxfit show --db ./tmaxfit.db 0192f0c4-... --delete`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Delete {
				if len(args) == 0 {
					return NewExitError(ExitCommandError, "--delete requires a run ID")
				}
				return runDeleteRun(opts, args[0], cmd)
			}
			if len(args) == 1 {
				return runShowRun(opts, args[0], cmd)
			}
			return runListRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "list at most this many of the latest runs (0 for all)")
	cmd.Flags().BoolVar(&opts.Delete, "delete", false, "delete the named run instead of showing it")

	return cmd
}

func openShowStore(opts *ShowOptions, cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = opts.Database
	}
	return openExistingStore(cfg.DBPath)
}

func runListRuns(opts *ShowOptions, cmd *cobra.Command) error {
	st, err := openShowStore(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	total, err := st.CountRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count runs", err)
	}

	listing := RunListing{Runs: make([]RunRow, 0, len(runs)), Total: total}
	for _, rec := range runs {
		listing.Runs = append(listing.Runs, newRunRow(rec))
	}

	if opts.Format == "json" {
		return outputShowJSON(cmd, listing)
	}

	w := cmd.OutOrStdout()
	if len(listing.Runs) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}
	fmt.Fprintf(w, "Runs: showing %d of %d\n", len(listing.Runs), listing.Total)
	fmt.Fprintln(w)
	for _, row := range listing.Runs {
		fmt.Fprintf(w, "[%d] %s  %-9s seed=%s chains=%d tuning=%d samples=%d  %s\n",
			row.Seq, truncateID(row.RunID), row.Status, row.Seed, row.Chains, row.Tuning, row.Samples,
			time.Duration(row.ElapsedNS).Round(time.Millisecond))
	}
	return nil
}

func runShowRun(opts *ShowOptions, runID string, cmd *cobra.Command) error {
	st, err := openShowStore(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	rec, err := st.ReadRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	detail := RunDetail{
		RunRow:        newRunRow(rec),
		RunKey:        rec.RunKey,
		DatasetDigest: rec.DatasetDigest,
		Sampler:       rec.Sampler,
		DrawsDigest:   rec.DrawsDigest,
		Params:        rec.Params,
	}

	ds, err := st.ReadDataset(ctx, rec.DatasetDigest)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read dataset", err)
	}
	detail.Observations = ds.Len()

	res, err := st.ReadDraws(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read draws", err)
	}
	detail.Draws = DrawStats{
		Tuning:    res.TuningCount(),
		Sampling:  res.SamplingCount(),
		Divergent: res.DivergentCount(),
	}

	fit, err := st.ReadFit(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read fit", err)
	}
	detail.Fit = fit

	if opts.Format == "json" {
		return outputShowJSON(cmd, detail)
	}
	outputRunDetailText(cmd.OutOrStdout(), detail, opts.Verbose)
	return nil
}

func runDeleteRun(opts *ShowOptions, runID string, cmd *cobra.Command) error {
	st, err := openShowStore(opts, cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	del, err := st.DeleteRun(context.Background(), runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to delete run", err)
	}
	if !del.Deleted {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}

	result := RunDeletion{RunID: runID, DatasetRemoved: del.DatasetRemoved}
	if opts.Format == "json" {
		return outputShowJSON(cmd, result)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Deleted run %s\n", runID)
	if result.DatasetRemoved {
		fmt.Fprintln(w, "  dataset removed (no other runs use it)")
	}
	return nil
}

func newRunRow(rec store.RunRecord) RunRow {
	return RunRow{
		Seq:       rec.Seq,
		RunID:     rec.ID,
		Status:    rec.Status,
		Seed:      fmt.Sprintf("%d", rec.Config.BaseSeed),
		Chains:    rec.Config.ChainCount,
		Tuning:    rec.Config.TuningSteps,
		Samples:   rec.Config.SampleSteps,
		ElapsedNS: rec.Elapsed.Nanoseconds(),
		Error:     rec.Error,
	}
}

// outputShowJSON outputs the show result as JSON.
func outputShowJSON(cmd *cobra.Command, data any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: data})
}

func outputRunDetailText(w io.Writer, d RunDetail, verbose bool) {
	fmt.Fprintf(w, "Run: %s (seq %d)\n", d.RunID, d.Seq)
	fmt.Fprintf(w, "Status: %s\n", d.Status)
	if d.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", d.Error)
	}
	fmt.Fprintf(w, "Config: seed=%s chains=%d tuning=%d samples=%d sampler=%s\n",
		d.Seed, d.Chains, d.Tuning, d.Samples, d.Sampler)
	fmt.Fprintf(w, "Dataset: %d observations (%s)\n", d.Observations, truncateID(d.DatasetDigest))
	fmt.Fprintf(w, "Draws: %d tuning, %d sampling, %d divergent\n", d.Draws.Tuning, d.Draws.Sampling, d.Draws.Divergent)
	if verbose {
		fmt.Fprintf(w, "Run key: %s\n", d.RunKey)
		fmt.Fprintf(w, "Draws digest: %s\n", d.DrawsDigest)
	}

	if len(d.Params) > 0 {
		fmt.Fprintln(w)
		writeParamTable(w, d.Params)
	}
	if n := len(d.Fit); n > 0 {
		first, last := d.Fit[0], d.Fit[n-1]
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Fit: %d points\n", n)
		fmt.Fprintf(w, "  x=%.4f  mean=%.4f  [%.4f, %.4f]\n", first.X, first.Mean, first.Lower, first.Upper)
		fmt.Fprintf(w, "  x=%.4f  mean=%.4f  [%.4f, %.4f]\n", last.X, last.Mean, last.Lower, last.Upper)
	}
}

// truncateID shortens an ID for display.
func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
