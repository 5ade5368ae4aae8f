package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/ident"
	"github.com/roach88/tmaxfit/internal/model"
	"github.com/roach88/tmaxfit/internal/sampler"
	"github.com/roach88/tmaxfit/internal/sampler/hmc"
	"github.com/roach88/tmaxfit/internal/session"
	"github.com/roach88/tmaxfit/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string

	// Sampler allows overriding the sampler (for testing).
	// If nil, defaults to hmc.New().
	Sampler sampler.Sampler
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	RunKey        string `json:"run_key"`
	StoredDigest  string `json:"stored_digest"`
	ReplayDigest  string `json:"replay_digest"`
	Draws         int    `json:"draws"`
	Peers         int    `json:"peers"`
	PeersAgree    bool   `json:"peers_agree"`
	Deterministic bool   `json:"deterministic"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return newReplayCommand(&ReplayOptions{RootOptions: rootOpts})
}

func newReplayCommand(opts *ReplayOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Re-sample stored runs and verify determinism",
		Long: `Re-run stored runs from their dataset and config and verify that
the draws are bit-identical.

Each successful run is sampled again with the same base seed, chain count
and step counts. The digest of the new draws must equal the stored one,
and every other stored run with the same run key must agree as well.
Without a run ID every successful run in the database is replayed.

Exit codes:
  0 - All runs are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, unknown run, etc.)

Examples:
  tmaxfit replay --db ./tmaxfit.db
  tmaxfit replay --db ./tmaxfit.db 0192f0c4-...
  tmaxfit replay --db ./tmaxfit.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runReplay(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	return cmd
}

// openExistingStore opens the database at path, refusing to create one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path), err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runReplay(opts *ReplayOptions, runID string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = opts.Database
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)

	st, err := openExistingStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	var records []store.RunRecord
	if runID != "" {
		rec, err := st.ReadRun(ctx, runID)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		if rec.Status != string(session.StatusOK) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run %s has status %s: no draws to replay", runID, rec.Status))
		}
		records = append(records, rec)
	} else {
		all, err := st.ListRuns(ctx, 0)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, rec := range all {
			if rec.Status == string(session.StatusOK) {
				records = append(records, rec)
			}
		}
	}

	if len(records) == 0 {
		if opts.Format == "json" {
			return outputReplayJSON(cmd, ReplayResult{Runs: []ReplayRunResult{}, AllDeterministic: true})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No successful runs found in database.")
		return nil
	}

	smp := opts.Sampler
	if smp == nil {
		smp = hmc.New()
	}

	result := ReplayResult{
		Runs:             make([]ReplayRunResult, 0, len(records)),
		TotalRuns:        len(records),
		AllDeterministic: true,
	}
	for _, rec := range records {
		if opts.Sampler == nil && rec.Sampler != samplerName {
			return NewExitError(ExitCommandError, fmt.Sprintf("run %s was drawn by sampler %q, cannot replay with %q", rec.ID, rec.Sampler, samplerName))
		}
		runResult, err := replayRun(ctx, st, rec, smp, cfg.StepBudget, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", rec.ID), err)
		}
		result.Runs = append(result.Runs, runResult)
		if !runResult.Deterministic {
			result.AllDeterministic = false
		}
	}

	// Output results
	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}

	return outputReplayText(cmd, result, opts.Verbose)
}

// replayRun samples rec again and compares its draws with the stored
// digest and with every stored peer sharing its run key.
func replayRun(ctx context.Context, st *store.Store, rec store.RunRecord, smp sampler.Sampler, stepBudget uint64, logger *slog.Logger) (ReplayRunResult, error) {
	ds, err := st.ReadDataset(ctx, rec.DatasetDigest)
	if err != nil {
		return ReplayRunResult{}, fmt.Errorf("read dataset: %w", err)
	}
	xs, ys := ds.Columns()
	digest := ident.DatasetDigest(xs, ys)
	key, err := ident.RunKey(digest, rec.Config.BaseSeed, rec.Config.ChainCount, rec.Config.TuningSteps, rec.Config.SampleSteps)
	if err != nil {
		return ReplayRunResult{}, err
	}
	if key != rec.RunKey {
		return ReplayRunResult{}, fmt.Errorf("run key mismatch: stored %s, recomputed %s", rec.RunKey, key)
	}

	m, err := model.Build(ds)
	if err != nil {
		return ReplayRunResult{}, err
	}
	eng := engine.New(smp,
		engine.WithStepBudget(stepBudget),
		engine.WithLogger(logger),
	)
	res, err := eng.Run(ctx, m, rec.Config)
	if err != nil {
		return ReplayRunResult{}, err
	}

	peers, err := st.RunsByKey(ctx, rec.RunKey)
	if err != nil {
		return ReplayRunResult{}, fmt.Errorf("read peers: %w", err)
	}
	peersAgree, peerCount := true, 0
	for _, p := range peers {
		if p.ID == rec.ID || p.Status != string(session.StatusOK) {
			continue
		}
		peerCount++
		if p.DrawsDigest != rec.DrawsDigest {
			peersAgree = false
		}
	}

	replayDigest := res.Digest()
	logger.Debug("run replayed", "run_id", rec.ID, "stored", rec.DrawsDigest, "replayed", replayDigest)
	return ReplayRunResult{
		RunID:         rec.ID,
		RunKey:        rec.RunKey,
		StoredDigest:  rec.DrawsDigest,
		ReplayDigest:  replayDigest,
		Draws:         len(res.Draws),
		Peers:         peerCount,
		PeersAgree:    peersAgree,
		Deterministic: replayDigest == rec.DrawsDigest && peersAgree,
	}, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeMismatch,
			Message: "determinism verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Run: %s\n", status, run.RunID)

		if verbose {
			fmt.Fprintf(w, "  Run key: %s\n", run.RunKey)
			fmt.Fprintf(w, "  Stored digest: %s\n", run.StoredDigest)
			fmt.Fprintf(w, "  Replay digest: %s\n", run.ReplayDigest)
			fmt.Fprintf(w, "  Peers: %d (agree: %v)\n", run.Peers, run.PeersAgree)
		} else {
			fmt.Fprintf(w, "  Draws: %d, peers: %d\n", run.Draws, run.Peers)
		}

		if run.StoredDigest != run.ReplayDigest {
			fmt.Fprintln(w, "  Warning: Replayed draws differ from stored draws!")
		}
		if !run.PeersAgree {
			fmt.Fprintln(w, "  Warning: Runs with the same key disagree!")
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All runs verified deterministic")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
