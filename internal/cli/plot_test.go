package cli

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executePlot(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewPlotCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decodePNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestPlot_MissingOutputFlag(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)

	_, err := executePlot(t, "text", input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "output")
}

func TestPlot_ObservationsOnly(t *testing.T) {
	dir := t.TempDir()
	// A single row is too few to fit but fine to draw.
	input := writeFile(t, dir, "one.csv", "1,10\n")
	outPath := filepath.Join(dir, "obs.png")

	out, err := executePlot(t, "text", input, "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 800x480 plot to "+outPath)
	assert.Equal(t, image.Rect(0, 0, 800, 480), decodePNG(t, outPath).Bounds())
}

func TestPlot_PosteriorOverlay(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)
	csv := writeFile(t, dir, "posterior.csv", "ALPHA,BETA,SIGMA\n8,2,0.5\n7.9,2.05,0.4\n")
	outPath := filepath.Join(dir, "fit.png")

	out, err := executePlot(t, "json", input, "--posterior", csv, "-o", outPath)
	require.NoError(t, err)

	resp, data := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, outPath, data["output"])
	decodePNG(t, outPath)
}

func TestPlot_BadPosterior(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "tmax.csv", lineInput)
	csv := writeFile(t, dir, "posterior.csv", "ALPHA,BETA,SIGMA\nnot,a,number\n")

	_, err := executePlot(t, "text", input, "--posterior", csv, "-o", filepath.Join(dir, "fit.png"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
