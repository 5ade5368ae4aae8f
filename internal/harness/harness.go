package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/tmaxfit/internal/render"
	"github.com/roach88/tmaxfit/internal/sampler"
	"github.com/roach88/tmaxfit/internal/sampler/hmc"
	"github.com/roach88/tmaxfit/internal/session"
	"github.com/roach88/tmaxfit/internal/testutil"
)

// Surface IDs every scenario run draws to.
const (
	TraceSurface     = "trace"
	PosteriorSurface = "posterior"
)

// Surface size of scenario runs.
const (
	surfaceWidth  = 640
	surfaceHeight = 480
)

// clockStart is the fixed wall time scenario runs start at.
var clockStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh session with a fixed run ID and a
// stepping clock, so deterministic samplers give reproducible results.
//
// Execution flow:
// 1. Build the sampler the scenario names
// 2. Run the session pipeline once
// 3. Check the expected status and error text
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	result, err := execute(scenario)
	if err != nil {
		return nil, err
	}

	checkExpect(result, scenario.Expect)

	actx := &AssertionContext{
		Ctx:      context.Background(),
		Scenario: scenario,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// execute runs the session pipeline once for scenario.
func execute(scenario *Scenario) (*Result, error) {
	inner, err := newSampler(scenario.Sampler)
	if err != nil {
		return nil, err
	}
	rec := &testutil.RecordingSampler{Inner: inner, FailOnCall: scenario.Sampler.FailOnCall}

	surfaces := render.NewSurfaces()
	surfaces.Register(TraceSurface, render.NewMemorySurface(surfaceWidth, surfaceHeight))
	surfaces.Register(PosteriorSurface, render.NewMemorySurface(surfaceWidth, surfaceHeight))

	var s *session.Session
	opts := []session.Option{
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), // Suppress logs in scenarios
		session.WithNow(testutil.NewStepClock(clockStart, time.Second).Now),
		session.WithRunIDs(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		session.WithSurfaces(surfaces),
		session.WithRetainDraws(true),
	}
	if scenario.StepBudget != nil {
		opts = append(opts, session.WithStepBudget(*scenario.StepBudget))
	}
	if n := scenario.CancelAfterChains; n > 0 {
		opts = append(opts, session.WithYielder(func(ctx context.Context, finished uint64) {
			if finished+1 >= n {
				s.Cancel()
			}
		}))
	}
	s = session.New(rec, opts...)

	result := NewResult()
	s.OnTransition(func(from, to session.State) {
		result.Transitions = append(result.Transitions, string(from)+">"+string(to))
	})

	result.Outcome = s.RunWith(context.Background(), session.RunRequest{
		TraceSurface:     TraceSurface,
		PosteriorSurface: PosteriorSurface,
		Seed:             scenario.Run.BaseSeed,
		Input:            scenario.Input,
		ChainCount:       scenario.Run.ChainCount,
		TuningSteps:      scenario.Run.TuningSteps,
		SampleSteps:      scenario.Run.SampleSteps,
	})
	result.Seeds = append(result.Seeds, rec.Seeds()...)
	result.FinalState = s.State()
	return result, nil
}

func newSampler(spec SamplerSpec) (sampler.Sampler, error) {
	switch spec.Kind {
	case SamplerHMC:
		return hmc.New(), nil
	case SamplerConstant:
		return testutil.ConstantSampler{Position: spec.Position}, nil
	case SamplerSeedEcho:
		return testutil.SeedEchoSampler{}, nil
	default:
		return nil, fmt.Errorf("unknown sampler kind %q", spec.Kind)
	}
}

func checkExpect(result *Result, expect Expect) {
	out := result.Outcome
	if out.Status != expect.Status {
		result.AddError(fmt.Sprintf("status = %s, want %s (error: %q)", out.Status, expect.Status, out.Error))
	}
	if expect.ErrorContains != "" && !strings.Contains(out.Error, expect.ErrorContains) {
		result.AddError(fmt.Sprintf("error %q does not contain %q", out.Error, expect.ErrorContains))
	}
}
