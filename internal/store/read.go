package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/tmaxfit/internal/dataset"
	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/model"
	"github.com/roach88/tmaxfit/internal/posterior"
)

const runColumns = `id, seq, run_key, dataset_digest, seed, chain_count, tuning_steps, sample_steps,
		sampler, status, error, draws_digest, elapsed_ns, params`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ReadRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, oldest first. A limit of zero or
// less returns every run.
// Results ordered by seq ASC, id ASC.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT ` + runColumns + `
		FROM (SELECT * FROM runs ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`
	if limit <= 0 {
		limit = -1
	}
	return s.queryRuns(ctx, "list runs", query, limit)
}

// RunsByKey returns every run that used the same dataset and config.
// Results ordered by seq ASC, id ASC.
func (s *Store) RunsByKey(ctx context.Context, runKey string) ([]RunRecord, error) {
	return s.queryRuns(ctx, "runs by key", `
		SELECT `+runColumns+`
		FROM runs
		WHERE run_key = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, runKey)
}

func (s *Store) queryRuns(ctx context.Context, op, query string, args ...any) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}

	// Return empty slice instead of nil
	if runs == nil {
		runs = []RunRecord{}
	}
	return runs, nil
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var seed, params string
	var elapsed int64

	if err := row.Scan(
		&rec.ID, &rec.Seq, &rec.RunKey, &rec.DatasetDigest, &seed,
		&rec.Config.ChainCount, &rec.Config.TuningSteps, &rec.Config.SampleSteps,
		&rec.Sampler, &rec.Status, &rec.Error, &rec.DrawsDigest, &elapsed, &params,
	); err != nil {
		return RunRecord{}, err
	}

	baseSeed, err := decodeSeed(seed)
	if err != nil {
		return RunRecord{}, err
	}
	rec.Config.BaseSeed = baseSeed
	rec.Elapsed = time.Duration(elapsed)

	summaries, err := unmarshalParams(params)
	if err != nil {
		return RunRecord{}, err
	}
	rec.Params = summaries
	return rec, nil
}

// ReadDraws rebuilds the RunResult of a stored run. Draws come back
// chain-major and iteration-minor, so the result's Digest matches the
// digest recorded when the run was written.
// Returns sql.ErrNoRows if the run does not exist.
func (s *Store) ReadDraws(ctx context.Context, runID string) (*engine.RunResult, error) {
	rec, err := s.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_index, iteration, tuning, divergent, intercept, slope, log_noise_scale
		FROM draws
		WHERE run_id = ?
		ORDER BY chain_index ASC, iteration ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query draws: %w", err)
	}
	defer rows.Close()

	res := &engine.RunResult{Config: rec.Config, Draws: []engine.Draw{}}
	for rows.Next() {
		var d engine.Draw
		var tuning, divergent int
		var p model.Params
		if err := rows.Scan(&d.Chain, &d.Iteration, &tuning, &divergent, &p.Intercept, &p.Slope, &p.LogNoiseScale); err != nil {
			return nil, fmt.Errorf("scan draw: %w", err)
		}
		d.Tuning = tuning != 0
		d.Divergent = divergent != 0
		d.Params = p
		res.Draws = append(res.Draws, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate draws: %w", err)
	}
	return res, nil
}

// ReadFit returns the stored fit curve of a run in grid order.
// Returns an empty slice for runs stored without one.
func (s *Store) ReadFit(ctx context.Context, runID string) ([]posterior.FitPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT x, mean, lower, upper
		FROM fit_points
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query fit: %w", err)
	}
	defer rows.Close()

	fit := []posterior.FitPoint{}
	for rows.Next() {
		var p posterior.FitPoint
		if err := rows.Scan(&p.X, &p.Mean, &p.Lower, &p.Upper); err != nil {
			return nil, fmt.Errorf("scan fit point: %w", err)
		}
		fit = append(fit, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fit: %w", err)
	}
	return fit, nil
}

// ReadDataset parses the stored body of a dataset back into a Dataset.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadDataset(ctx context.Context, digest string) (*dataset.Dataset, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM datasets WHERE digest = ?`, digest).Scan(&body)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Parse(body, dataset.WithMinObservations(0))
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", digest, err)
	}
	return ds, nil
}

// CountRuns returns the number of stored runs.
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

var _ rowScanner = (*sql.Row)(nil)
