// Package session is the host-facing surface of tmaxfit: prepare input,
// run a fit and draw its plots, plot observations, cancel a run.
//
// A Session wires the pipeline stages together and keeps a small state
// machine so a UI always knows whether it may start another action.
// Every entry point returns the session to Idle or Error.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/tmaxfit/internal/dataset"
	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/ident"
	"github.com/roach88/tmaxfit/internal/model"
	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/render"
	"github.com/roach88/tmaxfit/internal/sampler"
)

// Status is the outcome class of a run.
type Status string

const (
	StatusOK        Status = "ok"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Observer receives every finished run outcome. The metrics package
// implements it.
type Observer interface {
	ObserveRun(out *RunOutcome)
}

// RunRequest holds the arguments of one run.
type RunRequest struct {
	TraceSurface     string
	PosteriorSurface string

	Seed        uint64
	Input       string
	ChainCount  uint64
	TuningSteps uint64
	SampleSteps uint64
}

// Config returns the engine configuration of the request.
func (r RunRequest) Config() engine.RunConfig {
	return engine.RunConfig{
		BaseSeed:    r.Seed,
		ChainCount:  r.ChainCount,
		TuningSteps: r.TuningSteps,
		SampleSteps: r.SampleSteps,
	}
}

// RunOutcome is what a run reports back to the host.
type RunOutcome struct {
	RunID   string        `json:"run_id"`
	Status  Status        `json:"status"`
	Elapsed time.Duration `json:"elapsed_ns"`

	// Error is the human-readable failure, empty on success.
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`

	// RenderError reports a plot that failed after sampling succeeded.
	// The numeric results stay valid.
	RenderError string `json:"render_error,omitempty"`

	Summary *posterior.Summary `json:"summary,omitempty"`

	// PosteriorCSV holds a posterior.DefaultSampleSize-draw sample as an
	// ALPHA,BETA,SIGMA table.
	PosteriorCSV string `json:"posterior_csv,omitempty"`

	// Dataset and Result are the run's inputs and raw draws. Result is
	// only set when the session retains draws.
	Dataset *dataset.Dataset  `json:"-"`
	Result  *engine.RunResult `json:"-"`
}

// PreparedInput is the result of Prepare.
type PreparedInput struct {
	// Text is the normalized x,y table to show back to the user.
	Text         string                `json:"text"`
	Observations int                   `json:"observations"`
	Skipped      []dataset.SkippedLine `json:"skipped,omitempty"`
	Duplicates   int                   `json:"duplicates"`

	// Converted is true when the input was GHCN-Daily CSV.
	Converted bool `json:"converted"`
}

// Session runs fits for one host.
//
// Thread-safety model:
//   - entry points may be called from any goroutine, one action at a
//     time; a second concurrent action gets ErrBusy
//   - Cancel may be called at any time
type Session struct {
	sampler    sampler.Sampler
	surfaces   *render.Surfaces
	logger     *slog.Logger
	now        func() time.Time
	ids        ident.IDGenerator
	stepBudget uint64
	yield      engine.Yielder
	retain     bool
	observer   Observer
	summary    []posterior.Option

	mu        sync.Mutex
	state     State
	listeners []Listener
	cancel    context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithNow sets the wall clock used for elapsed times.
func WithNow(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunIDs sets the run ID generator. Default UUIDv7.
func WithRunIDs(g ident.IDGenerator) Option {
	return func(s *Session) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithSurfaces sets the surface registry run and plot IDs resolve in.
func WithSurfaces(r *render.Surfaces) Option {
	return func(s *Session) {
		if r != nil {
			s.surfaces = r
		}
	}
}

// WithStepBudget caps ChainCount*(TuningSteps+SampleSteps) per run.
func WithStepBudget(steps uint64) Option {
	return func(s *Session) {
		s.stepBudget = steps
	}
}

// WithYielder installs the hook the engine calls between chains.
func WithYielder(y engine.Yielder) Option {
	return func(s *Session) {
		s.yield = y
	}
}

// WithRetainDraws keeps the raw RunResult in each RunOutcome.
func WithRetainDraws(retain bool) Option {
	return func(s *Session) {
		s.retain = retain
	}
}

// WithObserver registers an observer for finished runs.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observer = o
	}
}

// WithSummaryOptions passes options to posterior.Summarize for every run.
func WithSummaryOptions(opts ...posterior.Option) Option {
	return func(s *Session) {
		s.summary = append(s.summary, opts...)
	}
}

// New creates an idle session that samples with smp.
func New(smp sampler.Sampler, opts ...Option) *Session {
	s := &Session{
		sampler:    smp,
		surfaces:   render.NewSurfaces(),
		logger:     slog.Default(),
		now:        time.Now,
		ids:        ident.UUIDv7Generator{},
		stepBudget: engine.DefaultStepBudget,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Surfaces returns the registry hosts bind surface IDs in.
func (s *Session) Surfaces() *render.Surfaces {
	return s.surfaces
}

// Prepare normalizes raw input for display. GHCN-Daily CSV is converted
// to DATE,TMAX first.
func (s *Session) Prepare(raw string) (_ *PreparedInput, err error) {
	if err := s.transition(StatePreparing); err != nil {
		return nil, err
	}
	defer func() { s.settle(err) }()

	ds, converted, err := loadInput(raw)
	if err != nil {
		return nil, err
	}
	return &PreparedInput{
		Text:         ds.Format(),
		Observations: ds.Len(),
		Skipped:      ds.Skipped(),
		Duplicates:   ds.Duplicates(),
		Converted:    converted,
	}, nil
}

// loadInput converts GHCN input when recognized and parses the result.
func loadInput(raw string, opts ...dataset.Option) (*dataset.Dataset, bool, error) {
	converted := false
	if dataset.IsGHCN(raw) {
		text, err := dataset.PrepareGHCN(raw)
		if err != nil {
			return nil, false, err
		}
		raw, converted = text, true
	}
	ds, err := dataset.Parse(raw, opts...)
	if err != nil {
		return nil, converted, err
	}
	return ds, converted, nil
}

// RunWith runs the whole pipeline: parse, build the model, sample every
// chain, summarize and draw both plots.
//
// A cancelled run reports StatusCancelled and carries no results. A plot
// that fails after sampling sets RenderError but keeps the summary.
func (s *Session) RunWith(ctx context.Context, req RunRequest) *RunOutcome {
	out := &RunOutcome{RunID: s.ids.Generate()}
	start := s.now()

	if err := s.transition(StateSampling); err != nil {
		out.Status, out.Err, out.Error = StatusError, err, err.Error()
		return out
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	err := s.runPipeline(runCtx, req, out)
	out.Elapsed = s.now().Sub(start)

	switch {
	case err == nil:
		out.Status = StatusOK
	case engine.IsCancelled(err):
		out.Status = StatusCancelled
		out.Error = err.Error()
		out.Err = err
		out.Summary, out.PosteriorCSV, out.Result = nil, "", nil
		err = nil
	default:
		out.Status = StatusError
		out.Error = err.Error()
		out.Err = err
	}
	s.settle(err)

	s.logger.Info("run finished",
		"run_id", out.RunID,
		"status", out.Status,
		"elapsed", out.Elapsed,
		"error", out.Error,
	)
	if s.observer != nil {
		s.observer.ObserveRun(out)
	}
	return out
}

func (s *Session) runPipeline(ctx context.Context, req RunRequest, out *RunOutcome) error {
	ds, _, err := loadInput(req.Input)
	if err != nil {
		return err
	}
	out.Dataset = ds

	m, err := model.Build(ds)
	if err != nil {
		return err
	}

	eng := engine.New(s.sampler,
		engine.WithStepBudget(s.stepBudget),
		engine.WithYielder(s.yield),
		engine.WithLogger(s.logger),
	)
	res, err := eng.Run(ctx, m, req.Config())
	if err != nil {
		return err
	}
	if s.retain {
		out.Result = res
	}

	summary, err := posterior.Summarize(res, ds, s.summary...)
	if err != nil {
		return err
	}
	out.Summary = summary
	sample := summary.PosteriorSample(posterior.DefaultSampleSize)
	out.PosteriorCSV = posterior.FormatCSV(sample)

	if err := s.transition(StateRendering); err != nil {
		return err
	}
	if rerr := s.drawRun(req, ds, summary, sample); rerr != nil {
		out.RenderError = rerr.Error()
		s.logger.Warn("plot failed", "run_id", out.RunID, "error", rerr)
	}
	return nil
}

func (s *Session) drawRun(req RunRequest, ds *dataset.Dataset, summary *posterior.Summary, sample []model.Params) error {
	var errs []error
	if trace, err := s.surfaces.Lookup(req.TraceSurface); err != nil {
		errs = append(errs, err)
	} else if err := render.DrawTrace(trace, summary.Traces); err != nil {
		errs = append(errs, err)
	}
	if fit, err := s.surfaces.Lookup(req.PosteriorSurface); err != nil {
		errs = append(errs, err)
	} else if err := render.DrawFit(fit, ds, summary.Fit, render.WithOverlay(sample)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Plot draws the fit plot for input. With a nil summary only the
// observations are drawn, so a UI can show pasted data before any run.
func (s *Session) Plot(surfaceID string, summary *posterior.Summary, input string) error {
	var fit []posterior.FitPoint
	var overlay []model.Params
	if summary != nil {
		fit = summary.Fit
		overlay = summary.PosteriorSample(posterior.DefaultSampleSize)
	}
	return s.plot(surfaceID, input, fit, overlay)
}

// PlotCSV draws the observations and one regression line per row of a
// posterior sample table, as produced in RunOutcome.PosteriorCSV. An
// empty table draws the observations only.
func (s *Session) PlotCSV(surfaceID, posteriorCSV, input string) error {
	var overlay []model.Params
	if posteriorCSV != "" {
		draws, err := posterior.ParseCSV(posteriorCSV)
		if err != nil {
			return err
		}
		overlay = draws
	}
	return s.plot(surfaceID, input, nil, overlay)
}

func (s *Session) plot(surfaceID, input string, fit []posterior.FitPoint, overlay []model.Params) (err error) {
	if err := s.transition(StateRendering); err != nil {
		return err
	}
	defer func() { s.settle(err) }()

	surface, err := s.surfaces.Lookup(surfaceID)
	if err != nil {
		return err
	}
	ds, _, err := loadInput(input, dataset.WithMinObservations(0))
	if err != nil {
		return err
	}
	if err := render.DrawFit(surface, ds, fit, render.WithOverlay(overlay)); err != nil {
		return fmt.Errorf("plot %s: %w", surfaceID, err)
	}
	return nil
}

// Cancel asks the running run, if any, to stop at its next chain
// boundary. It reports whether a run was in progress.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	s.logger.Info("cancel requested")
	cancel()
	return true
}
