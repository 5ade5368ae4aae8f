package render

import (
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/roach88/tmaxfit/internal/dataset"
	"github.com/roach88/tmaxfit/internal/posterior"
)

var (
	bandColor    = drawing.ColorFromHex("aec7e8")
	meanColor    = drawing.ColorFromHex("1f77b4")
	pointColor   = drawing.ColorFromHex("333333")
	overlayColor = drawing.Color{R: 127, G: 127, B: 127, A: 96}
)

// DrawFit draws the observations as a scatter, the posterior mean line
// and the credible band between each fit point's Lower and Upper.
//
// fit may be empty, in which case only the observations (and any
// WithOverlay lines) are drawn. With fewer than two observations the
// surface gets axes only.
func DrawFit(s Surface, ds *dataset.Dataset, fit []posterior.FitPoint, opts ...Option) error {
	w, h, err := checkSurface(s)
	if err != nil {
		return err
	}
	o := buildOptions(opts)

	switch ds.Len() {
	case 0:
		return present(s, axesOnly(w, h, "no data"))
	case 1:
		return present(s, axesOnly(w, h, "one observation: nothing to fit"))
	}

	ch := fitChart(ds, fit, o)
	ch.Width, ch.Height = w, h
	img, err := rasterize(ch)
	return finish(s, img, err, w, h, "fit plot cannot be drawn")
}

func fitChart(ds *dataset.Dataset, fit []posterior.FitPoint, o options) chart.Chart {
	xs, ys := ds.Columns()
	xlo, xhi := ds.XRange()

	var yb bounds
	yb.add(ys...)

	var series []chart.Series
	if len(fit) > 0 {
		fx := make([]float64, len(fit))
		lower := make([]float64, len(fit))
		upper := make([]float64, len(fit))
		for i, p := range fit {
			fx[i], lower[i], upper[i] = p.X, p.Lower, p.Upper
		}
		yb.add(lower...)
		yb.add(upper...)

		// The band is the upper curve filled to the axis with the area
		// under the lower curve painted back to the canvas color.
		series = append(series,
			chart.ContinuousSeries{
				Name:    "upper",
				Style:   chart.Style{StrokeColor: bandColor, StrokeWidth: 1, FillColor: bandColor},
				XValues: fx,
				YValues: upper,
			},
			chart.ContinuousSeries{
				Name:    "lower",
				Style:   chart.Style{StrokeColor: bandColor, StrokeWidth: 1, FillColor: chart.ColorWhite},
				XValues: fx,
				YValues: lower,
			},
		)
	}

	for _, p := range o.overlay {
		ly := []float64{p.At(xlo), p.At(xhi)}
		yb.add(ly...)
		series = append(series, chart.ContinuousSeries{
			Style:   lineStyle(overlayColor, 1),
			XValues: []float64{xlo, xhi},
			YValues: ly,
		})
	}

	series = append(series, chart.ContinuousSeries{
		Name:    "observed",
		Style:   pointStyle(pointColor),
		XValues: xs,
		YValues: ys,
	})
	if len(fit) > 0 {
		series = append(series, meanSeries(fit))
	}

	xName, yName := "x", "y"
	if hdr := ds.Header(); len(hdr) == 2 {
		xName, yName = hdr[0], hdr[1]
	}
	return chart.Chart{
		Title:      o.title,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 12, Bottom: 8}},
		XAxis:      chart.XAxis{Name: xName, Range: paddedRange(xlo, xhi)},
		YAxis:      chart.YAxis{Name: yName, Range: yb.rng()},
		Series:     series,
	}
}

func meanSeries(fit []posterior.FitPoint) chart.ContinuousSeries {
	xs := make([]float64, len(fit))
	ys := make([]float64, len(fit))
	for i, p := range fit {
		xs[i], ys[i] = p.X, p.Mean
	}
	return chart.ContinuousSeries{
		Name:    "mean",
		Style:   lineStyle(meanColor, 2),
		XValues: xs,
		YValues: ys,
	}
}
