package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tmaxfit/internal/store"
	"github.com/roach88/tmaxfit/internal/testutil"
)

// seedStore runs the exact-line fit once per ID into a fresh database.
func seedStore(t *testing.T, ids ...string) string {
	t.Helper()
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)
	dbPath := filepath.Join(dir, "runs.db")
	for _, id := range ids {
		_, err := runFitCommand(t, "text", []string{id},
			input, "--db", dbPath, "--seed", "11", "--chains", "2", "--tuning", "3", "--samples", "4")
		require.NoError(t, err)
	}
	return dbPath
}

func executeReplay(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts := &ReplayOptions{
		RootOptions: &RootOptions{Format: format},
		Sampler:     exactLine,
	}
	cmd := newReplayCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestReplay_MissingDatabase(t *testing.T) {
	_, err := executeReplay(t, "text", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestReplay_EmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	st.Close()

	out, err := executeReplay(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No successful runs found")
}

func TestReplay_AllRunsDeterministic(t *testing.T) {
	dbPath := seedStore(t, "run-a", "run-b")

	out, err := executeReplay(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 2 run(s)")
	assert.Contains(t, out, "✓ Run: run-a")
	assert.Contains(t, out, "✓ Run: run-b")
	assert.Contains(t, out, "Draws: 14, peers: 1")
	assert.Contains(t, out, "✓ All runs verified deterministic")
}

func TestReplay_SingleRunJSON(t *testing.T) {
	dbPath := seedStore(t, "run-a")

	out, err := executeReplay(t, "json", "--db", dbPath, "run-a")
	require.NoError(t, err)

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, true, data["all_deterministic"])
	runs, ok := data["runs"].([]any)
	require.True(t, ok)
	require.Len(t, runs, 1)
	run := runs[0].(map[string]any)
	assert.Equal(t, run["stored_digest"], run["replay_digest"])
}

func TestReplay_TamperedDigest(t *testing.T) {
	dbPath := seedStore(t, "run-a")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = st.DB().Exec(`UPDATE runs SET draws_digest = 'deadbeef' WHERE id = ?`, "run-a")
	require.NoError(t, err)
	st.Close()

	out, err := executeReplay(t, "text", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Run: run-a")
	assert.Contains(t, out, "Replayed draws differ")
	assert.Contains(t, out, "✗ Determinism verification failed")
}

func TestReplay_DifferentSamplerDetected(t *testing.T) {
	dbPath := seedStore(t, "run-a")

	buf := &bytes.Buffer{}
	opts := &ReplayOptions{
		RootOptions: &RootOptions{Format: "json"},
		Sampler:     testutil.ConstantSampler{Position: []float64{0, 0.5, 0}},
	}
	cmd := newReplayCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", dbPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, _ := decodeResponse(t, buf.String())
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMismatch, resp.Error.Code)
}

func TestReplay_UnknownRun(t *testing.T) {
	dbPath := seedStore(t, "run-a")

	_, err := executeReplay(t, "text", "--db", dbPath, "run-missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found")
}

func TestReplay_FailedRunRefused(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)
	dbPath := filepath.Join(dir, "runs.db")
	_, err := runFitCommand(t, "text", []string{"run-empty"},
		input, "--db", dbPath, "--chains", "1", "--tuning", "2", "--samples", "0")
	require.Error(t, err)

	_, err = executeReplay(t, "text", "--db", dbPath, "run-empty")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no draws to replay")

	// Replaying everything skips failed runs.
	out, err := executeReplay(t, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No successful runs found")
}

func TestReplay_RunKeyMatchesStore(t *testing.T) {
	dbPath := seedStore(t, "run-a", "run-b")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	a, err := st.ReadRun(context.Background(), "run-a")
	require.NoError(t, err)
	peers, err := st.RunsByKey(context.Background(), a.RunKey)
	require.NoError(t, err)
	assert.Len(t, peers, 2, "identical requests share a run key")
}
