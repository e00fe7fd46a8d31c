package visual

import (
	"context"
	"io"
	"strconv"
)

// PlotOptions controls the scatter plot page.
type PlotOptions struct {
	// Title is shown centered above the plot.
	Title string
	// PageTitle is the document title.
	PageTitle string
	Width     float64
	Height    float64
	Alpha     float64
	Size      float64
}

// DefaultPlotOptions returns the standard plot settings.
func DefaultPlotOptions() PlotOptions {
	return PlotOptions{
		Title:     "Ontology Network Embeddings Visualization",
		PageTitle: "Ontology Network Embeddings Visualization",
		Width:     1200,
		Height:    300,
		Alpha:     0.8,
		Size:      4.5,
	}
}

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.977 generate

const plotPadding = 20

// RenderPlot writes graph.html: an SVG scatter plot with a hover tooltip and
// wheel zoom, pan, box zoom, reset and save tools.
func RenderPlot(ctx context.Context, w io.Writer, points []Point, opts PlotOptions) error {
	return Plot(points, opts).Render(ctx, w)
}

var plotTools = []struct{ ID, Label string }{
	{"wheel", "Wheel Zoom"},
	{"pan", "Pan"},
	{"box", "Box Zoom"},
	{"reset", "Reset"},
	{"save", "Save"},
}

func viewBox(opts PlotOptions) string {
	return "0 0 " + num(opts.Width) + " " + num(opts.Height)
}

// projection maps data coordinates into the padded viewBox, y axis up.
func projection(points []Point, width, height float64) func(Point) (float64, float64) {
	if len(points) == 0 {
		return func(Point) (float64, float64) { return width / 2, height / 2 }
	}
	minX, maxX, minY, maxY := points[0].X, points[0].X, points[0].Y, points[0].Y
	for _, p := range points[1:] {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	scale := func(v, lo, hi, size float64) float64 {
		if hi == lo {
			return size / 2
		}
		return plotPadding + (v-lo)/(hi-lo)*(size-2*plotPadding)
	}
	return func(p Point) (float64, float64) {
		return scale(p.X, minX, maxX, width), height - scale(p.Y, minY, maxY, height)
	}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
