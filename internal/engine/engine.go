package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/tmaxfit/internal/model"
	"github.com/roach88/tmaxfit/internal/sampler"
)

// Target is a sampler target that can also map positions back to
// regression parameters. *model.Regression implements it.
type Target interface {
	sampler.Target
	Decode(pos []float64) model.Params
}

// Yielder is called between chains so a single-threaded host (a browser
// event loop) can repaint and deliver a cancel request. finished is the
// index of the chain that just completed.
type Yielder func(ctx context.Context, finished uint64)

// DefaultStepBudget is the default cap on ChainCount*(TuningSteps+SampleSteps).
const DefaultStepBudget = 1_000_000

// maxPrealloc caps the draws preallocated when the budget is disabled.
const maxPrealloc = 1 << 20

// Engine runs sampler chains one at a time on a FIFO task queue.
//
// Thread-safety model:
//   - Run: one call at a time per Engine; the call's goroutine is the
//     single writer of the result
//   - the Sampler is only ever invoked from that goroutine
type Engine struct {
	sampler    sampler.Sampler
	clock      *Clock
	stepBudget uint64
	yield      Yielder
	logger     *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithStepBudget sets the maximum total iterations per run.
// Zero disables the budget.
func WithStepBudget(steps uint64) EngineOption {
	return func(e *Engine) {
		e.stepBudget = steps
	}
}

// WithYielder installs the host hook called between chains.
func WithYielder(y Yielder) EngineOption {
	return func(e *Engine) {
		e.yield = y
	}
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine driving the given sampler.
func New(s sampler.Sampler, opts ...EngineOption) *Engine {
	e := &Engine{
		sampler:    s,
		clock:      NewClock(),
		stepBudget: DefaultStepBudget,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes cfg.ChainCount chains against target and returns every draw.
//
// Errors:
//   - *RunError INVALID_CONFIG or STEP_BUDGET_EXCEEDED before any chain runs
//   - *SamplerError when a chain fails or breaks the sampler contract
//   - *RunError CANCELLED when ctx is done at a chain boundary
//
// On any error the draws collected so far are discarded.
func (e *Engine) Run(ctx context.Context, target Target, cfg RunConfig) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	budget := NewStepBudget(e.stepBudget)
	total, ok := cfg.TotalSteps()
	if !ok {
		total = math.MaxUint64
	}
	if err := budget.Reserve(total); err != nil {
		se := err.(*StepsExceededError)
		e.logger.Warn("step budget exceeded",
			"steps", se.Steps,
			"budget", se.Limit,
		)
		return nil, NewBudgetError(se)
	}

	queue := newTaskQueue(int(cfg.ChainCount))
	defer queue.Close()
	for chain := uint64(0); chain < cfg.ChainCount; chain++ {
		queue.Enqueue(chainTask{
			Seq:   e.clock.Next(),
			Chain: chain,
			Seed:  ChainSeed(cfg.BaseSeed, chain),
		})
	}

	e.logger.Info("run starting",
		"chains", cfg.ChainCount,
		"tuning", cfg.TuningSteps,
		"samples", cfg.SampleSteps,
		"seed", cfg.BaseSeed,
	)

	result := &RunResult{
		Config: cfg,
		Draws:  make([]Draw, 0, min(total, maxPrealloc)),
	}

	var completed uint64
	for {
		task, ok := queue.TryDequeue()
		if !ok {
			break
		}

		if err := ctx.Err(); err != nil {
			e.logger.Info("run cancelled", "completed_chains", completed)
			return nil, NewCancelledError(completed, err)
		}

		draws, err := e.runChain(ctx, target, cfg, task)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				e.logger.Info("run cancelled", "completed_chains", completed)
				return nil, NewCancelledError(completed, ctxErr)
			}
			e.logger.Warn("chain failed",
				"chain", task.Chain,
				"seed", task.Seed,
				"error", err,
			)
			return nil, err
		}
		result.Draws = append(result.Draws, draws...)
		completed++

		if e.yield != nil && queue.Len() > 0 {
			e.yield(ctx, task.Chain)
		}
	}

	e.logger.Info("run complete",
		"draws", len(result.Draws),
		"divergent", result.DivergentCount(),
	)
	return result, nil
}

// runChain calls the sampler for one chain, verifies its output and
// decodes every position.
func (e *Engine) runChain(ctx context.Context, target Target, cfg RunConfig, task chainTask) ([]Draw, error) {
	raw, err := e.sampler.Sample(ctx, target, task.Seed, cfg.TuningSteps, cfg.SampleSteps)
	if err != nil {
		return nil, &SamplerError{Chain: task.Chain, Seed: task.Seed, Err: err}
	}
	if err := verifyDraws(raw, cfg, target.Dim()); err != nil {
		return nil, &SamplerError{Chain: task.Chain, Seed: task.Seed, Err: err}
	}

	out := make([]Draw, len(raw))
	divergent := 0
	for i, d := range raw {
		out[i] = Draw{
			Chain:     task.Chain,
			Iteration: uint64(i),
			Tuning:    d.Tuning,
			Divergent: d.Divergent,
			Params:    target.Decode(d.Position),
		}
		if d.Divergent {
			divergent++
		}
	}

	e.logger.Debug("chain complete",
		"chain", task.Chain,
		"seq", task.Seq,
		"seed", task.Seed,
		"draws", len(out),
		"divergent", divergent,
	)
	return out, nil
}

// verifyDraws checks sampler output against the contract.
func verifyDraws(draws []sampler.Draw, cfg RunConfig, dim int) error {
	want := cfg.StepsPerChain()
	if uint64(len(draws)) != want {
		return fmt.Errorf("%w: got %d draws, want %d", ErrContractViolation, len(draws), want)
	}
	for i, d := range draws {
		if wantTuning := uint64(i) < cfg.TuningSteps; d.Tuning != wantTuning {
			return fmt.Errorf("%w: draw %d tuning=%t, want %t", ErrContractViolation, i, d.Tuning, wantTuning)
		}
		if len(d.Position) != dim {
			return fmt.Errorf("%w: draw %d has dimension %d, want %d", ErrContractViolation, i, len(d.Position), dim)
		}
		for _, v := range d.Position {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: draw %d has non-finite position", ErrContractViolation, i)
			}
		}
	}
	return nil
}
