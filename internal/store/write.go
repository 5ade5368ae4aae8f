package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/tmaxfit/internal/dataset"
	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/ident"
	"github.com/roach88/tmaxfit/internal/posterior"
)

// RunRecord is the stored description of one run.
type RunRecord struct {
	ID            string
	Seq           int64
	RunKey        string
	DatasetDigest string
	Config        engine.RunConfig
	Sampler       string
	Status        string
	Error         string
	DrawsDigest   string
	Elapsed       time.Duration
	Params        []posterior.ParamSummary
}

// WriteDataset stores the normalized text of ds and returns its digest.
// Uses ON CONFLICT(digest) DO NOTHING: a dataset is stored once however
// many runs use it.
func (s *Store) WriteDataset(ctx context.Context, ds *dataset.Dataset) (string, error) {
	xs, ys := ds.Columns()
	digest := ident.DatasetDigest(xs, ys)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (digest, body, observations)
		VALUES (?, ?, ?)
		ON CONFLICT(digest) DO NOTHING
	`, digest, ds.Format(), ds.Len())
	if err != nil {
		return "", fmt.Errorf("write dataset: %w", err)
	}
	return digest, nil
}

// WriteRun stores a run with its draws and fit curve in one transaction
// and assigns its seq. res and fit may be nil for runs that failed.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency: writing the same run ID
// twice keeps the first write and returns its seq with inserted=false.
//
// Note: the dataset referenced by rec.DatasetDigest must exist.
func (s *Store) WriteRun(ctx context.Context, rec RunRecord, res *engine.RunResult, fit []posterior.FitPoint) (seq int64, inserted bool, err error) {
	if res != nil && rec.DrawsDigest == "" {
		rec.DrawsDigest = res.Digest()
	}
	params, err := marshalParams(rec.Params)
	if err != nil {
		return 0, false, fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	err = tx.QueryRowContext(ctx, `SELECT seq FROM runs WHERE id = ?`, rec.ID).Scan(&seq)
	switch {
	case err == nil:
		return seq, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, fmt.Errorf("write run: lookup: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return 0, false, fmt.Errorf("write run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, run_key, dataset_digest, seed, chain_count, tuning_steps, sample_steps,
		 sampler, status, error, draws_digest, elapsed_ns, params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		seq,
		rec.RunKey,
		rec.DatasetDigest,
		encodeSeed(rec.Config.BaseSeed),
		rec.Config.ChainCount,
		rec.Config.TuningSteps,
		rec.Config.SampleSteps,
		rec.Sampler,
		rec.Status,
		rec.Error,
		rec.DrawsDigest,
		rec.Elapsed.Nanoseconds(),
		params,
	)
	if err != nil {
		return 0, false, fmt.Errorf("write run: %w", err)
	}

	if res != nil {
		if err := writeDraws(ctx, tx, rec.ID, res.Draws); err != nil {
			return 0, false, err
		}
	}
	if len(fit) > 0 {
		if err := writeFit(ctx, tx, rec.ID, fit); err != nil {
			return 0, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("write run: commit: %w", err)
	}
	return seq, true, nil
}

// writeDraws inserts every draw of a run through one prepared statement.
func writeDraws(ctx context.Context, tx *sql.Tx, runID string, draws []engine.Draw) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO draws
		(run_id, chain_index, iteration, tuning, divergent, intercept, slope, log_noise_scale)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write draws: prepare: %w", err)
	}
	defer stmt.Close()

	for _, d := range draws {
		_, err := stmt.ExecContext(ctx,
			runID,
			int64(d.Chain),
			int64(d.Iteration),
			boolInt(d.Tuning),
			boolInt(d.Divergent),
			d.Params.Intercept,
			d.Params.Slope,
			d.Params.LogNoiseScale,
		)
		if err != nil {
			return fmt.Errorf("write draws: chain %d iteration %d: %w", d.Chain, d.Iteration, err)
		}
	}
	return nil
}

func writeFit(ctx context.Context, tx *sql.Tx, runID string, fit []posterior.FitPoint) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fit_points (run_id, idx, x, mean, lower, upper)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write fit: prepare: %w", err)
	}
	defer stmt.Close()

	for i, p := range fit {
		if _, err := stmt.ExecContext(ctx, runID, i, p.X, p.Mean, p.Lower, p.Upper); err != nil {
			return fmt.Errorf("write fit: point %d: %w", i, err)
		}
	}
	return nil
}

// RunDeletion reports what DeleteRun removed.
type RunDeletion struct {
	// Deleted is false when no run had the ID.
	Deleted bool

	// DatasetRemoved is true when the run was the last one drawn from
	// its dataset, so the dataset went with it.
	DatasetRemoved bool
}

// DeleteRun removes a run with its draws and fit curve, and its dataset
// once no other run refers to it. Idempotent.
func (s *Store) DeleteRun(ctx context.Context, id string) (RunDeletion, error) {
	var del RunDeletion

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return del, fmt.Errorf("delete run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var digest string
	err = tx.QueryRowContext(ctx, `SELECT dataset_digest FROM runs WHERE id = ?`, id).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return del, nil
	}
	if err != nil {
		return del, fmt.Errorf("delete run: lookup: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return del, fmt.Errorf("delete run: %w", err)
	}
	del.Deleted = true

	res, err := tx.ExecContext(ctx, `
		DELETE FROM datasets
		WHERE digest = ? AND NOT EXISTS (SELECT 1 FROM runs WHERE dataset_digest = ?)
	`, digest, digest)
	if err != nil {
		return del, fmt.Errorf("delete run: dataset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return del, fmt.Errorf("delete run: dataset: %w", err)
	}
	del.DatasetRemoved = n > 0

	if err := tx.Commit(); err != nil {
		return del, fmt.Errorf("delete run: commit: %w", err)
	}
	return del, nil
}
