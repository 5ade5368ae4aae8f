package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// palette holds the chain colors. Chain i uses palette[i%len(palette)].
var palette = []drawing.Color{
	drawing.ColorFromHex("1f77b4"),
	drawing.ColorFromHex("ff7f0e"),
	drawing.ColorFromHex("2ca02c"),
	drawing.ColorFromHex("d62728"),
	drawing.ColorFromHex("9467bd"),
	drawing.ColorFromHex("8c564b"),
	drawing.ColorFromHex("e377c2"),
	drawing.ColorFromHex("7f7f7f"),
	drawing.ColorFromHex("bcbd22"),
	drawing.ColorFromHex("17becf"),
}

// ChainColor returns the series color for a chain index.
func ChainColor(chain uint64) drawing.Color {
	return palette[chain%uint64(len(palette))]
}

// errChartPanic marks a recovered panic from the chart library.
var errChartPanic = errors.New("chart library panicked")

func isPanic(err error) bool {
	return errors.Is(err, errChartPanic)
}

// rasterize renders ch to an image. A panic inside go-chart comes back
// as an error wrapping errChartPanic.
func rasterize(ch chart.Chart) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("%w: %v", errChartPanic, r)
		}
	}()

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}

// finish presents a chart, falling back to an axes-only image when the
// chart could not be drawn. Only a panic is reported as an error; an
// ordinary go-chart refusal (degenerate range) is an expected fallback.
func finish(s Surface, img image.Image, err error, w, h int, caption string) error {
	if err == nil {
		return present(s, img)
	}
	if isPanic(err) {
		if perr := present(s, axesOnly(w, h, "render failed")); perr != nil {
			return perr
		}
		return &RenderError{Code: CodeChartFailed, Message: caption, Err: err}
	}
	return present(s, axesOnly(w, h, caption))
}

var (
	white     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	axisColor = color.RGBA{R: 51, G: 51, B: 51, A: 255}
)

// axesOnly draws a blank plot area with an L-shaped pair of axes and a
// caption.
func axesOnly(w, h int, caption string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)

	left, bottom := min(40, w/5), max(h-30, h*4/5)
	top, right := min(10, h/10), max(w-10, w*9/10)
	for y := top; y <= bottom && y < h; y++ {
		img.Set(left, y, axisColor)
	}
	for x := left; x <= right && x < w; x++ {
		if bottom < h {
			img.Set(x, bottom, axisColor)
		}
	}

	if caption != "" {
		face := basicfont.Face7x13
		d := &font.Drawer{Dst: img, Src: image.NewUniform(axisColor), Face: face}
		tw := d.MeasureString(caption).Ceil()
		x := max(left+4, (w-tw)/2)
		y := max(face.Metrics().Ascent.Ceil(), (top+bottom)/2)
		d.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
		d.DrawString(caption)
	}
	return img
}

// paddedRange widens [lo, hi] by a margin so points on the edge stay
// visible, and opens up a zero-width range around its value.
func paddedRange(lo, hi float64) *chart.ContinuousRange {
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return &chart.ContinuousRange{Min: -1, Max: 1}
	}
	span := hi - lo
	if span == 0 {
		span = math.Max(1, math.Abs(lo)*0.1)
		return &chart.ContinuousRange{Min: lo - span, Max: hi + span}
	}
	return &chart.ContinuousRange{Min: lo - span*0.05, Max: hi + span*0.05}
}

// bounds tracks the extent of values added to it.
type bounds struct {
	lo, hi float64
	n      int
}

func (b *bounds) add(vs ...float64) {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if b.n == 0 || v < b.lo {
			b.lo = v
		}
		if b.n == 0 || v > b.hi {
			b.hi = v
		}
		b.n++
	}
}

func (b *bounds) rng() *chart.ContinuousRange {
	if b.n == 0 {
		return &chart.ContinuousRange{Min: -1, Max: 1}
	}
	return paddedRange(b.lo, b.hi)
}

func lineStyle(c drawing.Color, width float64) chart.Style {
	return chart.Style{StrokeColor: c, StrokeWidth: width}
}

func pointStyle(c drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    3,
		DotColor:    c,
	}
}
