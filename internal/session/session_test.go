package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tmaxfit/internal/dataset"
	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/model"
	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/render"
	"github.com/roach88/tmaxfit/internal/sampler"
	"github.com/roach88/tmaxfit/internal/testutil"
)

const (
	scenarioInput = "1,10\n2,12\n3,14\n4,16"
	runID         = "0190b1c2-0000-7000-8000-000000000001"
	step          = 250 * time.Millisecond
)

type transitionLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *transitionLog) record(from, to State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, string(from)+">"+string(to))
}

func (l *transitionLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.steps...)
}

type recordingObserver struct {
	outcomes []*RunOutcome
}

func (o *recordingObserver) ObserveRun(out *RunOutcome) {
	o.outcomes = append(o.outcomes, out)
}

func newTestSession(t *testing.T, smp sampler.Sampler, opts ...Option) (*Session, *render.MemorySurface, *render.MemorySurface, *transitionLog) {
	t.Helper()
	clock := testutil.NewStepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), step)
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithNow(clock.Now),
		WithRunIDs(testutil.NewFixedRunIDGenerator(runID)),
	}
	s := New(smp, append(base, opts...)...)

	trace := render.NewMemorySurface(320, 240)
	fit := render.NewMemorySurface(320, 240)
	s.Surfaces().Register("trace", trace)
	s.Surfaces().Register("fit", fit)

	log := &transitionLog{}
	s.OnTransition(log.record)
	return s, trace, fit, log
}

func scenarioRequest(chains, tuning, samples uint64) RunRequest {
	return RunRequest{
		TraceSurface:     "trace",
		PosteriorSurface: "fit",
		Seed:             42,
		Input:            scenarioInput,
		ChainCount:       chains,
		TuningSteps:      tuning,
		SampleSteps:      samples,
	}
}

func TestRunWith_ConstantSampler(t *testing.T) {
	obs := &recordingObserver{}
	s, trace, fit, log := newTestSession(t, testutil.ConstantSampler{Position: []float64{0, 1, 0}},
		WithObserver(obs), WithRetainDraws(true))

	out := s.RunWith(context.Background(), scenarioRequest(2, 5, 5))
	require.Equal(t, StatusOK, out.Status, out.Error)

	assert.Equal(t, runID, out.RunID)
	assert.Equal(t, step, out.Elapsed)
	assert.Empty(t, out.Error)
	assert.Empty(t, out.RenderError)
	require.NotNil(t, out.Summary)
	assert.Equal(t, 10, out.Summary.Draws)
	require.NotNil(t, out.Result)
	assert.Len(t, out.Result.Draws, 20)

	p := out.Summary.Predict(2.5)
	assert.InDelta(t, 13.0, p.Mean, 1e-9)

	lines := strings.Split(strings.TrimSpace(out.PosteriorCSV), "\n")
	require.Len(t, lines, 1+posterior.DefaultSampleSize)
	assert.Equal(t, posterior.CSVHeader, lines[0])

	assert.Equal(t, 1, trace.Presents())
	assert.Equal(t, 1, fit.Presents())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, []string{"idle>sampling", "sampling>rendering", "rendering>idle"}, log.get())
	assert.Len(t, obs.outcomes, 1)
}

func TestRunWith_TuningOnly(t *testing.T) {
	s, trace, _, log := newTestSession(t, testutil.ConstantSampler{})

	out := s.RunWith(context.Background(), scenarioRequest(2, 10, 0))
	assert.Equal(t, StatusError, out.Status)
	assert.ErrorIs(t, out.Err, posterior.ErrNoDraws)
	assert.Contains(t, out.Error, "no post-tuning draws")
	assert.Nil(t, out.Summary)
	assert.Equal(t, 0, trace.Presents())

	assert.Equal(t, StateError, s.State())
	assert.Equal(t, []string{"idle>sampling", "sampling>error"}, log.get())
}

func TestRunWith_CancelAfterFirstChain(t *testing.T) {
	rec := &testutil.RecordingSampler{Inner: testutil.ConstantSampler{}}
	var s *Session
	s, trace, _, log := newTestSession(t, rec, WithYielder(func(ctx context.Context, finished uint64) {
		if finished == 0 {
			assert.True(t, s.Cancel())
		}
	}))

	out := s.RunWith(context.Background(), scenarioRequest(4, 10, 10))
	assert.Equal(t, StatusCancelled, out.Status)
	assert.True(t, engine.IsCancelled(out.Err))
	assert.Nil(t, out.Summary)
	assert.Empty(t, out.PosteriorCSV)
	assert.Nil(t, out.Result)
	assert.Equal(t, 1, rec.Calls())
	assert.Equal(t, 0, trace.Presents())

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, []string{"idle>sampling", "sampling>idle"}, log.get())
	assert.False(t, s.Cancel(), "nothing left to cancel")
}

func TestRunWith_ParseErrorSurfacedVerbatim(t *testing.T) {
	s, _, _, _ := newTestSession(t, testutil.ConstantSampler{})
	req := scenarioRequest(1, 1, 1)
	req.Input = "1,10\n"

	out := s.RunWith(context.Background(), req)
	assert.Equal(t, StatusError, out.Status)
	assert.True(t, dataset.IsParseError(out.Err))
	assert.Contains(t, out.Error, "TOO_FEW_OBSERVATIONS")
	assert.Equal(t, StateError, s.State())

	// The session recovers from Error on the next action.
	out = s.RunWith(context.Background(), scenarioRequest(1, 1, 1))
	assert.Equal(t, StatusOK, out.Status, out.Error)
	assert.Equal(t, StateIdle, s.State())
}

func TestRunWith_IdenticalXIsDegenerate(t *testing.T) {
	rec := &testutil.RecordingSampler{Inner: testutil.ConstantSampler{}}
	s, _, _, _ := newTestSession(t, rec)
	req := scenarioRequest(1, 1, 1)
	req.Input = "1,10\n1,12\n1,14"

	out := s.RunWith(context.Background(), req)
	assert.Equal(t, StatusError, out.Status)
	var me *model.ModelError
	require.True(t, errors.As(out.Err, &me))
	assert.Equal(t, model.ErrCodeDegenerateX, me.Code)
	assert.Contains(t, out.Error, "DEGENERATE_X")
	assert.Empty(t, rec.Seeds(), "the sampler never runs")
	assert.Equal(t, StateError, s.State())
}

func TestRunWith_SamplerFailure(t *testing.T) {
	rec := &testutil.RecordingSampler{Inner: testutil.ConstantSampler{}, FailOnCall: 2}
	s, _, _, _ := newTestSession(t, rec, WithRetainDraws(true))

	out := s.RunWith(context.Background(), scenarioRequest(3, 1, 1))
	assert.Equal(t, StatusError, out.Status)
	assert.ErrorIs(t, out.Err, testutil.ErrInjected)

	var se *engine.SamplerError
	require.ErrorAs(t, out.Err, &se)
	assert.Equal(t, uint64(1), se.Chain)
	assert.Nil(t, out.Result)
}

func TestRunWith_StepBudget(t *testing.T) {
	s, _, _, _ := newTestSession(t, testutil.ConstantSampler{}, WithStepBudget(10))
	out := s.RunWith(context.Background(), scenarioRequest(2, 5, 5))
	assert.Equal(t, StatusError, out.Status)
	assert.True(t, engine.IsBudgetError(out.Err))
}

func TestRunWith_UnknownSurfaceKeepsResults(t *testing.T) {
	s, _, fit, _ := newTestSession(t, testutil.ConstantSampler{})
	req := scenarioRequest(1, 2, 3)
	req.TraceSurface = "missing"

	out := s.RunWith(context.Background(), req)
	assert.Equal(t, StatusOK, out.Status)
	assert.Contains(t, out.RenderError, "UNKNOWN_SURFACE")
	assert.NotNil(t, out.Summary)
	assert.NotEmpty(t, out.PosteriorCSV)
	assert.Equal(t, 1, fit.Presents(), "the other plot still draws")
	assert.Equal(t, StateIdle, s.State())
}

func TestRunWith_ParentContextCancelled(t *testing.T) {
	s, _, _, _ := newTestSession(t, testutil.ConstantSampler{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := s.RunWith(ctx, scenarioRequest(2, 1, 1))
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Equal(t, StateIdle, s.State())
}

func TestRunWith_Busy(t *testing.T) {
	var s *Session
	var inner *RunOutcome
	s, _, _, _ = newTestSession(t, testutil.ConstantSampler{}, WithYielder(func(ctx context.Context, finished uint64) {
		inner = s.RunWith(ctx, scenarioRequest(1, 1, 1))
		assert.Equal(t, StateSampling, s.State())
	}))

	out := s.RunWith(context.Background(), scenarioRequest(2, 1, 1))
	assert.Equal(t, StatusOK, out.Status, out.Error)

	require.NotNil(t, inner)
	assert.Equal(t, StatusError, inner.Status)
	assert.ErrorIs(t, inner.Err, ErrBusy)
	assert.Equal(t, StateIdle, s.State())
}

func TestPrepare(t *testing.T) {
	s, _, _, log := newTestSession(t, testutil.ConstantSampler{})

	in, err := s.Prepare("x,y\n3,14\n1,10\nbad line here\n1,11\n2,12\n")
	require.NoError(t, err)
	assert.Equal(t, "x,y\n1,10\n2,12\n3,14\n", in.Text)
	assert.Equal(t, 3, in.Observations)
	assert.Equal(t, 1, in.Duplicates)
	require.Len(t, in.Skipped, 1)
	assert.Equal(t, 4, in.Skipped[0].Line)
	assert.False(t, in.Converted)
	assert.Equal(t, []string{"idle>preparing", "preparing>idle"}, log.get())
}

func TestPrepare_GHCN(t *testing.T) {
	s, _, _, _ := newTestSession(t, testutil.ConstantSampler{})
	raw := dataset.GHCNHeader + "\n" +
		"USW00094728,20200101,TMAX,56,,,W,\n" +
		"USW00094728,20200101,TMIN,-10,,,W,\n" +
		"USW00094728,20200102,TMAX,61,,,W,\n" +
		"USW00094728,20200103,TMAX,999,,X,W,\n"

	in, err := s.Prepare(raw)
	require.NoError(t, err)
	assert.True(t, in.Converted)
	assert.Equal(t, 2, in.Observations)
	assert.True(t, strings.HasPrefix(in.Text, dataset.PreparedHeader+"\n"))
}

func TestPrepare_Error(t *testing.T) {
	s, _, _, log := newTestSession(t, testutil.ConstantSampler{})
	_, err := s.Prepare("")
	assert.True(t, dataset.IsParseError(err))
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, []string{"idle>preparing", "preparing>error"}, log.get())
}

func TestPlot(t *testing.T) {
	s, _, fit, log := newTestSession(t, testutil.ConstantSampler{Position: []float64{0, 1, 0}})

	// Before any run: observations only, even for a single point.
	require.NoError(t, s.Plot("fit", nil, "1,10\n"))
	require.NoError(t, s.Plot("fit", nil, ""))
	assert.Equal(t, 2, fit.Presents())

	out := s.RunWith(context.Background(), scenarioRequest(1, 1, 4))
	require.Equal(t, StatusOK, out.Status, out.Error)
	require.NoError(t, s.Plot("fit", out.Summary, scenarioInput))
	require.NoError(t, s.PlotCSV("fit", out.PosteriorCSV, scenarioInput))
	assert.Equal(t, 5, fit.Presents())

	assert.Equal(t, StateIdle, s.State())
	assert.Contains(t, log.get(), "rendering>idle")
}

func TestPlot_Errors(t *testing.T) {
	s, _, _, _ := newTestSession(t, testutil.ConstantSampler{})

	err := s.Plot("nope", nil, scenarioInput)
	assert.True(t, render.IsUnknownSurface(err))
	assert.Equal(t, StateError, s.State())

	err = s.PlotCSV("fit", "A,B\n", scenarioInput)
	assert.ErrorIs(t, err, posterior.ErrBadCSV)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateIdle, StateSampling))
	assert.True(t, CanTransition(StateSampling, StateIdle))
	assert.True(t, CanTransition(StateError, StateRendering))
	assert.False(t, CanTransition(StateIdle, StateError))
	assert.False(t, CanTransition(StateSampling, StatePreparing))
	assert.False(t, CanTransition(StateRendering, StateSampling))
}
