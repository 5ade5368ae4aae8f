package render

import (
	"fmt"
	"image"
	"image/draw"
	"sort"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/model"
	"github.com/roach88/tmaxfit/internal/posterior"
)

// TraceParams lists the parameters DrawTrace plots by default, top to
// bottom.
var TraceParams = []string{
	posterior.ParamIntercept,
	posterior.ParamSlope,
	posterior.ParamLogNoiseScale,
}

var paramValue = map[string]func(model.Params) float64{
	posterior.ParamIntercept:     func(p model.Params) float64 { return p.Intercept },
	posterior.ParamSlope:         func(p model.Params) float64 { return p.Slope },
	posterior.ParamLogNoiseScale: func(p model.Params) float64 { return p.LogNoiseScale },
}

type options struct {
	title   string
	params  []string
	overlay []model.Params
}

// Option configures a draw call.
type Option func(*options)

// WithTitle sets the chart title. For the trace plot it prefixes each
// panel's parameter name.
func WithTitle(title string) Option {
	return func(o *options) {
		o.title = title
	}
}

// WithParams selects which parameters the trace plot shows, one panel
// each, in the given order.
func WithParams(names ...string) Option {
	return func(o *options) {
		o.params = append([]string(nil), names...)
	}
}

// WithOverlay adds one thin regression line per parameter draw to the
// fit plot.
func WithOverlay(draws []model.Params) Option {
	return func(o *options) {
		o.overlay = append([]model.Params(nil), draws...)
	}
}

func buildOptions(opts []Option) options {
	o := options{params: TraceParams}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DrawTrace draws value against iteration for each selected parameter,
// one stacked panel per parameter and one line per chain.
//
// traces is keyed by chain index, as in posterior.Summary.Traces.
func DrawTrace(s Surface, traces map[uint64][]engine.Draw, opts ...Option) error {
	w, h, err := checkSurface(s)
	if err != nil {
		return err
	}
	o := buildOptions(opts)
	for _, name := range o.params {
		if _, ok := paramValue[name]; !ok {
			return &RenderError{Code: CodeUnknownParam, Message: fmt.Sprintf("unknown trace parameter %q", name)}
		}
	}

	chains := make([]uint64, 0, len(traces))
	longest := 0
	for c, d := range traces {
		if len(d) == 0 {
			continue
		}
		chains = append(chains, c)
		longest = max(longest, len(d))
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	if len(chains) == 0 || len(o.params) == 0 {
		return present(s, axesOnly(w, h, "no draws"))
	}
	panelH := h / len(o.params)
	if panelH < 1 {
		return present(s, axesOnly(w, h, "surface too small"))
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)

	var panicErr error
	for i, name := range o.params {
		top := i * panelH
		ph := panelH
		if i == len(o.params)-1 {
			ph = h - top
		}

		ch := traceChart(name, o.title, traces, chains, longest, i == 0)
		ch.Width, ch.Height = w, ph

		img, err := rasterize(ch)
		if err != nil {
			caption := name + ": cannot draw"
			if panicErr == nil && isPanic(err) {
				panicErr = &RenderError{Code: CodeChartFailed, Message: "trace panel " + name, Err: err}
			}
			img = axesOnly(w, ph, caption)
		}
		r := image.Rect(0, top, w, top+ph)
		draw.Draw(canvas, r, img, img.Bounds().Min, draw.Src)
	}

	if err := present(s, canvas); err != nil {
		return err
	}
	return panicErr
}

func traceChart(name, title string, traces map[uint64][]engine.Draw, chains []uint64, longest int, legend bool) chart.Chart {
	get := paramValue[name]

	var yb bounds
	series := make([]chart.Series, 0, len(chains))
	for _, c := range chains {
		draws := traces[c]
		xs := make([]float64, len(draws))
		ys := make([]float64, len(draws))
		for i, d := range draws {
			xs[i] = float64(i)
			ys[i] = get(d.Params)
		}
		yb.add(ys...)
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("chain %d", c),
			Style:   lineStyle(ChainColor(c), 1),
			XValues: xs,
			YValues: ys,
		})
	}

	panelTitle := name
	if title != "" {
		panelTitle = title + ": " + name
	}
	ch := chart.Chart{
		Title:      panelTitle,
		Background: chart.Style{Padding: chart.Box{Top: 24, Left: 16, Right: 12, Bottom: 8}},
		XAxis: chart.XAxis{
			Name:  "iteration",
			Range: paddedRange(0, float64(longest-1)),
		},
		YAxis: chart.YAxis{
			Name:  name,
			Range: yb.rng(),
		},
		Series: series,
	}
	if legend {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}
	return ch
}
