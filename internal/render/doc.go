// Package render draws the trace plot and the fit plot onto
// caller-supplied surfaces.
//
// Charts are rasterized with go-chart. When a chart cannot be drawn
// (no data, a single point, or a range go-chart rejects) the surface
// receives an axes-only image with a caption instead, so a caller
// always sees the plot area update.
package render
