package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tmaxfit/internal/ident"
	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/store"
	"github.com/roach88/tmaxfit/internal/testutil"
)

const lineInput = "DATE,TMAX\n1,10\n2,12\n3,14\n4,16\n"

// exactLine pins every draw to intercept 8, slope 2.
var exactLine = testutil.ConstantSampler{Position: []float64{0, 1, 0}}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// runFitCommand executes run with the exact-line sampler and the given
// run IDs, returning stdout.
func runFitCommand(t *testing.T, format string, ids []string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: format},
		Sampler:     exactLine,
		RunIDs:      ident.NewFixedGenerator(ids...),
	}
	cmd := newRunCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decodeResponse(t *testing.T, out string) (CLIResponse, map[string]any) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

func TestRun_StoresRunAndWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)
	dbPath := filepath.Join(dir, "runs.db")
	fitPath := filepath.Join(dir, "fit.png")
	tracePath := filepath.Join(dir, "trace.png")
	csvPath := filepath.Join(dir, "posterior.csv")
	metricsPath := filepath.Join(dir, "tmaxfit.prom")

	out, err := runFitCommand(t, "json", []string{"run-1"},
		input,
		"--db", dbPath,
		"--seed", "7", "--chains", "2", "--tuning", "5", "--samples", "10",
		"--fit-out", fitPath, "--trace-out", tracePath,
		"--posterior-out", csvPath, "--metrics-out", metricsPath,
	)
	require.NoError(t, err)

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", data["run_id"])
	assert.Equal(t, float64(20), data["draws"])
	assert.Equal(t, float64(2), data["chains"])
	assert.Equal(t, float64(1), data["seq"])
	assert.NotEmpty(t, data["run_key"])

	for _, path := range []string{fitPath, tracePath} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	csv, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	sample, err := posterior.ParseCSV(string(csv))
	require.NoError(t, err)
	assert.Len(t, sample, posterior.DefaultSampleSize)
	assert.InDelta(t, 2.0, sample[0].Slope, 1e-9)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `tmaxfit_runs_total{status="ok"} 1`)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	rec, err := st.ReadRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", rec.Status)
	assert.Equal(t, samplerName, rec.Sampler)
	assert.Equal(t, uint64(7), rec.Config.BaseSeed)
	assert.Equal(t, uint64(2), rec.Config.ChainCount)
	assert.NotEmpty(t, rec.DrawsDigest)
	assert.Len(t, rec.Params, 3)

	res, err := st.ReadDraws(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 10, res.TuningCount())
	assert.Equal(t, 20, res.SamplingCount())

	fit, err := st.ReadFit(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, fit, posterior.DefaultGridSize)
}

func TestRun_TextReport(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)

	out, err := runFitCommand(t, "text", []string{"run-1"},
		input, "--no-store", "--chains", "2", "--tuning", "2", "--samples", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "Run run-1 ok")
	assert.Contains(t, out, "draws: 6 post-tuning across 2 chains, 0 divergent")
	assert.Contains(t, out, "slope")
	assert.NotContains(t, out, "stored:")
}

func TestRun_Stdin(t *testing.T) {
	buf := &bytes.Buffer{}
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		Sampler:     exactLine,
		RunIDs:      ident.NewFixedGenerator("run-stdin"),
	}
	cmd := newRunCommand(opts)
	cmd.SetIn(bytes.NewBufferString(lineInput))
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-", "--no-store", "--chains", "1", "--tuning", "1", "--samples", "2"})

	require.NoError(t, cmd.Execute())
	_, data := decodeResponse(t, buf.String())
	assert.Equal(t, float64(2), data["draws"])
}

func TestRun_TooFewObservations(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "one.csv", "1,10\n")

	out, err := runFitCommand(t, "text", []string{"run-1"}, input, "--no-store")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Run run-1 error")
	assert.Contains(t, out, "Error [TOO_FEW_OBSERVATIONS]")
}

func TestRun_FailedRunIsStored(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)
	dbPath := filepath.Join(dir, "runs.db")

	out, err := runFitCommand(t, "json", []string{"run-empty"},
		input, "--db", dbPath, "--chains", "1", "--tuning", "3", "--samples", "0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp, _ := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNoDraws, resp.Error.Code)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	rec, err := st.ReadRun(context.Background(), "run-empty")
	require.NoError(t, err)
	assert.Equal(t, "error", rec.Status)
	assert.Contains(t, rec.Error, "no post-tuning draws")
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)

	out, err := runFitCommand(t, "text", nil, input, "--no-store", "--chains", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "CONFIG_INVALID")
}

func TestRun_MissingInput(t *testing.T) {
	_, err := runFitCommand(t, "text", nil, filepath.Join(t.TempDir(), "nope.csv"), "--no-store")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read input")
}

func TestRun_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)
	runFile := writeFile(t, dir, "run.cue", "seed: 3\nchains: 3\ntuning: 2\nsamples: 4\n")

	buf := &bytes.Buffer{}
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json", Config: runFile},
		Sampler:     exactLine,
		RunIDs:      ident.NewFixedGenerator("run-cue"),
	}
	cmd := newRunCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	// --samples on the command line wins over the run file.
	cmd.SetArgs([]string{input, "--no-store", "--samples", "5"})

	require.NoError(t, cmd.Execute())
	_, data := decodeResponse(t, buf.String())
	assert.Equal(t, float64(3), data["chains"])
	assert.Equal(t, float64(15), data["draws"])
}

func TestRun_ConfigFileSchemaError(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)
	runFile := writeFile(t, dir, "run.cue", "chains: 0\n")

	opts := &RunOptions{RootOptions: &RootOptions{Format: "text", Config: runFile}, Sampler: exactLine}
	cmd := newRunCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{input, "--no-store"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, "CONFIG_SCHEMA", ErrorCode(err))
}

func TestApplyRunFlags_OnlyChanged(t *testing.T) {
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}}
	cmd := newRunCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--seed", "9"}))

	cfg, err := loadConfig(opts.RootOptions)
	require.NoError(t, err)
	chains := cfg.Chains
	applyRunFlags(cmd, opts, cfg)

	assert.Equal(t, uint64(9), cfg.Seed)
	assert.Equal(t, chains, cfg.Chains, "unset flags keep the config value")
}
