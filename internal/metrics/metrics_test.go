package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/session"
)

func TestObserveRun(t *testing.T) {
	r := New()

	r.ObserveRun(&session.RunOutcome{
		Status:  session.StatusOK,
		Elapsed: 250 * time.Millisecond,
		Summary: &posterior.Summary{Draws: 100},
		Result: &engine.RunResult{Draws: []engine.Draw{
			{Divergent: true}, {}, {Divergent: true},
		}},
	})
	r.ObserveRun(&session.RunOutcome{
		Status:      session.StatusOK,
		Summary:     &posterior.Summary{Draws: 40},
		RenderError: "UNKNOWN_SURFACE: no surface \"trace\"",
	})
	r.ObserveRun(&session.RunOutcome{Status: session.StatusCancelled})
	r.ObserveRun(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("cancelled")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.runs.WithLabelValues("error")))
	assert.Equal(t, 140.0, testutil.ToFloat64(r.draws))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.divergent))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.renderErrors))
	assert.Equal(t, 40.0, testutil.ToFloat64(r.lastSuccess))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ObserveRun(&session.RunOutcome{Status: session.StatusError, Elapsed: time.Second})

	path := filepath.Join(t.TempDir(), "tmaxfit.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tmaxfit_runs_total{status="error"} 1`)
	assert.Contains(t, string(data), "tmaxfit_run_duration_seconds_count 1")
}

func TestWriteTextfile_BadPath(t *testing.T) {
	err := New().WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.Error(t, err)
}
