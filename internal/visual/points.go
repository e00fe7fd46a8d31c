// Package visual renders the concept layout as a self-contained interactive
// scatter plot and a searchable concept picker.
package visual

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/Benny93/ontolink-go/internal/graph"
	"github.com/Benny93/ontolink-go/internal/layout"
	"github.com/Benny93/ontolink-go/internal/similarity"
)

// Point is one concept on the plot.
type Point struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Cluster  int     `json:"cluster"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Top      string  `json:"top"`
	Color    string  `json:"color"`
}

var nameCleaner = strings.NewReplacer("  ", " ", "\t", " ")

// LoadPoints pairs coordinate and cluster rows line by line, stopping at the
// shorter input. Each point gets the joined names of its topN most similar
// concepts and a color per cluster.
func LoadPoints(coords []layout.Point, clusters []layout.Assignment, sim *similarity.Index, topN int) ([]Point, error) {
	n := min(len(coords), len(clusters))
	points := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		raw := coords[i].Name
		name, category := graph.SplitCategory(raw)

		res, err := sim.TopN(raw, topN)
		if err != nil {
			return nil, fmt.Errorf("similar concepts of %q: %w", raw, err)
		}

		points = append(points, Point{
			Name:     nameCleaner.Replace(name),
			Category: category,
			Cluster:  clusters[i].Cluster,
			X:        coords[i].X,
			Y:        coords[i].Y,
			Top:      res.Joined(),
		})
	}

	colorize(points)
	return points, nil
}

// colorize gives each cluster a magma color in order of first appearance.
func colorize(points []Point) {
	var order []int
	seen := make(map[int]bool)
	for _, p := range points {
		if !seen[p.Cluster] {
			seen[p.Cluster] = true
			order = append(order, p.Cluster)
		}
	}

	palette := Magma(len(order) + 1)
	colors := make(map[int]string, len(order))
	for i, c := range order {
		colors[c] = palette[i]
	}
	for i := range points {
		points[i].Color = colors[points[i].Cluster]
	}
}

// magmaStops samples the magma colormap at equal steps from dark to light.
var magmaStops = []string{
	"#000004", "#1c1044", "#4f127b", "#812581", "#b5367a",
	"#e55064", "#fb8761", "#fec287", "#fcfdbf",
}

// Magma returns n colors evenly spaced along the magma colormap.
func Magma(n int) []string {
	if n <= 0 {
		return nil
	}

	stops := make([]colorful.Color, len(magmaStops))
	for i, hex := range magmaStops {
		// The stops are constants; Hex only fails on malformed input.
		stops[i], _ = colorful.Hex(hex)
	}

	palette := make([]string, n)
	for i := range palette {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		pos := t * float64(len(stops)-1)
		lo := int(pos)
		frac := pos - float64(lo)
		if lo >= len(stops)-1 || frac == 0 {
			palette[i] = stops[min(lo, len(stops)-1)].Hex()
			continue
		}
		palette[i] = stops[lo].BlendLab(stops[lo+1], frac).Clamped().Hex()
	}
	return palette
}
