package layout

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Benny93/ontolink-go/internal/parsers"
)

// WriteCoordinates writes one "name;x;y" line per point. Names holding ';'
// or quotes are quoted.
func WriteCoordinates(w io.Writer, points []Point) error {
	records := make([][]string, 0, len(points))
	for _, p := range points {
		records = append(records, []string{
			p.Name,
			strconv.FormatFloat(p.X, 'g', -1, 64),
			strconv.FormatFloat(p.Y, 'g', -1, 64),
		})
	}
	return parsers.WriteRecords(w, ';', records)
}

// ReadCoordinates reads "name;x;y" lines.
func ReadCoordinates(r io.Reader) ([]Point, error) {
	records, err := parsers.ReadRecords(r, ';')
	if err != nil {
		return nil, fmt.Errorf("reading coordinates: %w", err)
	}

	points := make([]Point, 0, len(records))
	for i, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("coordinates line %d: expected name;x;y", i+1)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinates line %d: %w", i+1, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinates line %d: %w", i+1, err)
		}
		points = append(points, Point{Name: rec[0], X: x, Y: y})
	}
	return points, nil
}

// WriteClusters writes one "name;cluster" line per assignment.
func WriteClusters(w io.Writer, assignments []Assignment) error {
	records := make([][]string, 0, len(assignments))
	for _, a := range assignments {
		records = append(records, []string{a.Name, strconv.Itoa(a.Cluster)})
	}
	return parsers.WriteRecords(w, ';', records)
}

// ReadClusters reads "name;cluster" lines.
func ReadClusters(r io.Reader) ([]Assignment, error) {
	records, err := parsers.ReadRecords(r, ';')
	if err != nil {
		return nil, fmt.Errorf("reading clusters: %w", err)
	}

	assignments := make([]Assignment, 0, len(records))
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("clusters line %d: expected name;cluster", i+1)
		}
		c, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("clusters line %d: %w", i+1, err)
		}
		assignments = append(assignments, Assignment{Name: rec[0], Cluster: c})
	}
	return assignments, nil
}
