// Package parsers reads the delimited text formats that flow between
// ontolink stages: comma-separated tables with a header row, header-less
// integer edge lists, and the semicolon-separated dictionary, coordinate
// and cluster files.
package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMissingColumn is returned when a required column is absent from a header.
var ErrMissingColumn = errors.New("missing column")

// Table is a delimited file with a header row.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable reads a delimited file whose first record is the header.
// Records may have a varying number of fields; missing trailing fields read
// as empty strings through Table.Value.
func ReadTable(r io.Reader, delim rune) (*Table, error) {
	records, err := ReadRecords(r, delim)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	return &Table{Header: header, Rows: records[1:]}, nil
}

// ReadRecords reads all records of a delimited file without header handling.
// Blank lines are skipped.
func ReadRecords(r io.Reader, delim rune) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	return records, nil
}

// WriteRecords writes records separated by delim. Fields holding the
// delimiter, a quote or a line break are quoted, so ReadRecords returns them
// unchanged.
func WriteRecords(w io.Writer, delim rune, records [][]string) error {
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	return nil
}

// Column returns the position of the first header that matches one of names.
func (t *Table) Column(names ...string) (int, error) {
	for _, name := range names {
		for i, h := range t.Header {
			if h == name {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(names, " or "))
}

// Value returns the trimmed field at col of row, or "" if the row is short.
func (t *Table) Value(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// ReadEdgeList reads header-less "src,dst" integer pairs.
func ReadEdgeList(r io.Reader) ([][2]int, error) {
	records, err := ReadRecords(r, ',')
	if err != nil {
		return nil, err
	}

	edges := make([][2]int, 0, len(records))
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("edge list line %d: expected 2 fields, got %d", i+1, len(rec))
		}
		src, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("edge list line %d: %w", i+1, err)
		}
		dst, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("edge list line %d: %w", i+1, err)
		}
		edges = append(edges, [2]int{src, dst})
	}
	return edges, nil
}

// FeatureRow is one row of a feature table keyed by its index column.
type FeatureRow struct {
	Index  int
	Values []float64
}

// ReadFeatures reads a comma-separated feature table. The first column is the
// row index; the remaining columns are numeric feature values.
func ReadFeatures(r io.Reader) ([]string, []FeatureRow, error) {
	table, err := ReadTable(r, ',')
	if err != nil {
		return nil, nil, err
	}
	if len(table.Header) == 0 {
		return nil, nil, nil
	}

	width := len(table.Header) - 1
	rows := make([]FeatureRow, 0, len(table.Rows))
	for i, rec := range table.Rows {
		idx, err := strconv.Atoi(table.Value(rec, 0))
		if err != nil {
			return nil, nil, fmt.Errorf("features line %d: index: %w", i+2, err)
		}
		values := make([]float64, width)
		for j := 0; j < width; j++ {
			raw := table.Value(rec, j+1)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("features line %d: column %s: %w", i+2, table.Header[j+1], err)
			}
			values[j] = v
		}
		rows = append(rows, FeatureRow{Index: idx, Values: values})
	}
	return table.Header[1:], rows, nil
}
