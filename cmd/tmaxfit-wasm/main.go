//go:build js && wasm

// Command tmaxfit-wasm exposes the fit session to a browser page.
//
// It registers four globals:
//
//	prepare(raw) → {text, observations, duplicates, converted, skipped} | {error}
//	run_with(traceCanvas, posteriorCanvas, seed, input, chains, tuning, samples) → Promise<JSON string>
//	plot_tmax(canvas, posteriorCSV, input) → {ok} | {error}
//	cancel_run() → bool
//
// If the page defines tmaxfit_on_state(from, to) it is called on every
// session state change so controls can be enabled or disabled.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"syscall/js"
	"time"

	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/sampler/hmc"
	"github.com/roach88/tmaxfit/internal/session"
)

// runResult is what run_with resolves to, JSON encoded.
type runResult struct {
	RunID        string                   `json:"run_id"`
	Status       session.Status           `json:"status"`
	ElapsedMS    float64                  `json:"elapsed_ms"`
	Error        string                   `json:"error,omitempty"`
	RenderError  string                   `json:"render_error,omitempty"`
	PosteriorCSV string                   `json:"posterior_csv,omitempty"`
	Draws        int                      `json:"draws"`
	Params       []posterior.ParamSummary `json:"params,omitempty"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	sess := session.New(hmc.New(),
		session.WithLogger(logger),
		// Parking the goroutine hands control back to the event loop so
		// the page can repaint and deliver cancel_run between chains.
		session.WithYielder(func(ctx context.Context, finished uint64) {
			time.Sleep(time.Millisecond)
		}),
	)
	sess.OnTransition(func(from, to session.State) {
		if cb := js.Global().Get("tmaxfit_on_state"); cb.Type() == js.TypeFunction {
			cb.Invoke(string(from), string(to))
		}
	})

	h := &host{sess: sess}
	js.Global().Set("prepare", js.FuncOf(h.prepare))
	js.Global().Set("run_with", js.FuncOf(h.runWith))
	js.Global().Set("plot_tmax", js.FuncOf(h.plotTMax))
	js.Global().Set("cancel_run", js.FuncOf(h.cancelRun))

	logger.Info("tmaxfit ready")
	select {}
}

type host struct {
	sess *session.Session
}

func (h *host) bind(canvasID string) {
	h.sess.Surfaces().Register(canvasID, canvasSurface{id: canvasID})
}

func errorValue(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

func (h *host) prepare(_ js.Value, args []js.Value) any {
	if len(args) != 1 {
		return errorValue(fmt.Errorf("prepare: want 1 argument, got %d", len(args)))
	}
	prepared, err := h.sess.Prepare(args[0].String())
	if err != nil {
		return errorValue(err)
	}
	skipped := make([]any, 0, len(prepared.Skipped))
	for _, s := range prepared.Skipped {
		skipped = append(skipped, map[string]any{"line": s.Line, "text": s.Text, "reason": s.Reason})
	}
	return map[string]any{
		"text":         prepared.Text,
		"observations": prepared.Observations,
		"duplicates":   prepared.Duplicates,
		"converted":    prepared.Converted,
		"skipped":      skipped,
	}
}

// runWith samples on a goroutine and returns a Promise: blocking inside
// a js.Func callback would stall the event loop the yielder relies on.
func (h *host) runWith(_ js.Value, args []js.Value) any {
	req, err := runRequest(args)
	if err != nil {
		return rejected(err)
	}
	h.bind(req.TraceSurface)
	h.bind(req.PosteriorSurface)

	var handler js.Func
	handler = js.FuncOf(func(_ js.Value, p []js.Value) any {
		resolve, reject := p[0], p[1]
		go func() {
			defer handler.Release()
			out := h.sess.RunWith(context.Background(), req)
			res := runResult{
				RunID:        out.RunID,
				Status:       out.Status,
				ElapsedMS:    float64(out.Elapsed) / float64(time.Millisecond),
				Error:        out.Error,
				RenderError:  out.RenderError,
				PosteriorCSV: out.PosteriorCSV,
			}
			if out.Summary != nil {
				res.Draws = out.Summary.Draws
				res.Params = out.Summary.Params
			}
			data, err := json.Marshal(res)
			if err != nil {
				reject.Invoke(err.Error())
				return
			}
			resolve.Invoke(string(data))
		}()
		return nil
	})
	return js.Global().Get("Promise").New(handler)
}

func rejected(err error) js.Value {
	return js.Global().Get("Promise").Call("reject", err.Error())
}

func runRequest(args []js.Value) (session.RunRequest, error) {
	if len(args) != 7 {
		return session.RunRequest{}, fmt.Errorf("run_with: want 7 arguments, got %d", len(args))
	}
	var nums [4]uint64
	for i, idx := range []int{2, 4, 5, 6} {
		n, err := uintArg(args[idx])
		if err != nil {
			return session.RunRequest{}, fmt.Errorf("run_with: argument %d: %w", idx+1, err)
		}
		nums[i] = n
	}
	return session.RunRequest{
		TraceSurface:     args[0].String(),
		PosteriorSurface: args[1].String(),
		Seed:             nums[0],
		Input:            args[3].String(),
		ChainCount:       nums[1],
		TuningSteps:      nums[2],
		SampleSteps:      nums[3],
	}, nil
}

// uintArg accepts a non-negative integral number, or a string or BigInt
// for values above 2^53.
func uintArg(v js.Value) (uint64, error) {
	if v.Type() == js.TypeNumber {
		f := v.Float()
		if f < 0 || f != math.Trunc(f) || f > 1<<53 {
			return 0, fmt.Errorf("%v is not a non-negative integer below 2^53", f)
		}
		return uint64(f), nil
	}
	s := js.Global().Get("String").Invoke(v).String()
	return strconv.ParseUint(s, 10, 64)
}

func (h *host) plotTMax(_ js.Value, args []js.Value) any {
	if len(args) != 3 {
		return errorValue(fmt.Errorf("plot_tmax: want 3 arguments, got %d", len(args)))
	}
	canvasID := args[0].String()
	h.bind(canvasID)
	if err := h.sess.PlotCSV(canvasID, args[1].String(), args[2].String()); err != nil {
		return errorValue(err)
	}
	return map[string]any{"ok": true}
}

func (h *host) cancelRun(js.Value, []js.Value) any {
	return h.sess.Cancel()
}
