// Package ingestion turns a tabular ontology export into ontolink's graph
// data files and drives the pipeline stages that consume them.
package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/Benny93/ontolink-go/internal/graph"
	"github.com/Benny93/ontolink-go/internal/parsers"
)

// ClassColumns names the columns of an ontology export.
type ClassColumns struct {
	ID     string
	Parent string
	Label  string
}

// DefaultClassColumns matches BioPortal-style CSV exports.
var DefaultClassColumns = ClassColumns{
	ID:     "Class ID",
	Parent: "Parents",
	Label:  "Preferred Label",
}

// ClassRecord is one row of an ontology export.
type ClassRecord struct {
	ID     string
	Parent string
	Label  string
}

// GraphRow is one row of the graph data file: a node, the node it links to,
// and the node's preferred label.
type GraphRow struct {
	Node   string
	Parent string
	Text   string
}

// Pair is a child/parent edge read back from the graph data file.
type Pair struct {
	Node   string
	Parent string
}

// ReadClasses reads an ontology export. Rows without a class ID are skipped.
func ReadClasses(r io.Reader, cols ClassColumns) ([]ClassRecord, error) {
	table, err := parsers.ReadTable(r, ',')
	if err != nil {
		return nil, fmt.Errorf("reading ontology export: %w", err)
	}

	idCol, err := table.Column(cols.ID)
	if err != nil {
		return nil, err
	}
	parentCol, err := table.Column(cols.Parent)
	if err != nil {
		return nil, err
	}
	labelCol, err := table.Column(cols.Label)
	if err != nil {
		return nil, err
	}

	classes := make([]ClassRecord, 0, len(table.Rows))
	for _, row := range table.Rows {
		id := table.Value(row, idCol)
		if id == "" {
			continue
		}
		classes = append(classes, ClassRecord{
			ID:     id,
			Parent: table.Value(row, parentCol),
			Label:  table.Value(row, labelCol),
		})
	}
	return classes, nil
}

// BuildGraphData links every class to its parent and every parent back to the
// class. A later row overwrites an earlier row's entry for the same node but
// the node keeps the position of its first appearance. Parents that are not
// classes themselves get the text NA.
func BuildGraphData(classes []ClassRecord) []GraphRow {
	labels := make(map[string]string, len(classes))
	for _, c := range classes {
		labels[c.ID] = c.Label
	}

	var order []string
	entries := make(map[string]GraphRow)
	set := func(row GraphRow) {
		if _, ok := entries[row.Node]; !ok {
			order = append(order, row.Node)
		}
		entries[row.Node] = row
	}

	for _, c := range classes {
		set(GraphRow{Node: c.ID, Parent: c.Parent, Text: c.Label})
		if c.Parent == "" {
			continue
		}

		parentText, ok := labels[c.Parent]
		if !ok {
			parentText = graph.NA
		}
		set(GraphRow{Node: c.Parent, Parent: c.ID, Text: parentText})
	}

	rows := make([]GraphRow, 0, len(order))
	for _, node := range order {
		rows = append(rows, entries[node])
	}
	return rows
}

// WriteGraphData writes graph rows with a node,parent,text header.
func WriteGraphData(w io.Writer, rows []GraphRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"node", "parent", "text"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write([]string{row.Node, row.Parent, row.Text}); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPairs reads child/parent pairs from a graph data file. Both the
// node,parent header written by WriteGraphData and the node_1,node_2 header
// of hand-made edge tables are accepted. Rows without a parent are skipped.
func ReadPairs(r io.Reader) ([]Pair, error) {
	table, err := parsers.ReadTable(r, ',')
	if err != nil {
		return nil, fmt.Errorf("reading graph data: %w", err)
	}

	nodeCol, err := table.Column("node_1", "node")
	if err != nil {
		return nil, err
	}
	parentCol, err := table.Column("node_2", "parent")
	if err != nil {
		return nil, err
	}

	pairs := make([]Pair, 0, len(table.Rows))
	for _, row := range table.Rows {
		node := table.Value(row, nodeCol)
		parent := table.Value(row, parentCol)
		if node == "" || parent == "" {
			continue
		}
		pairs = append(pairs, Pair{Node: node, Parent: parent})
	}
	return pairs, nil
}

// ReadGraphData reads the rows written by WriteGraphData. The text column is
// optional and reads as NA when absent.
func ReadGraphData(r io.Reader) ([]GraphRow, error) {
	table, err := parsers.ReadTable(r, ',')
	if err != nil {
		return nil, fmt.Errorf("reading graph data: %w", err)
	}

	nodeCol, err := table.Column("node")
	if err != nil {
		return nil, err
	}
	parentCol, err := table.Column("parent")
	if err != nil {
		return nil, err
	}
	textCol, err := table.Column("text")
	if err != nil {
		textCol = -1
	}

	rows := make([]GraphRow, 0, len(table.Rows))
	for _, rec := range table.Rows {
		row := GraphRow{
			Node:   table.Value(rec, nodeCol),
			Parent: table.Value(rec, parentCol),
			Text:   graph.NA,
		}
		if row.Node == "" {
			continue
		}
		if textCol >= 0 {
			if t := table.Value(rec, textCol); t != "" {
				row.Text = t
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Pairs returns the child/parent pairs of rows that have a parent.
func Pairs(rows []GraphRow) []Pair {
	pairs := make([]Pair, 0, len(rows))
	for _, row := range rows {
		if row.Parent != "" {
			pairs = append(pairs, Pair{Node: row.Node, Parent: row.Parent})
		}
	}
	return pairs
}

// EncodePairs assigns indices to every child in order, then to every parent
// not seen yet. This order also fixes the row order of the feature file.
func EncodePairs(pairs []Pair) *graph.Encoding {
	enc := graph.NewEncoding()
	for _, p := range pairs {
		enc.Add(p.Node)
	}
	for _, p := range pairs {
		enc.Add(p.Parent)
	}
	return enc
}

// WriteEdges writes one header-less "src,dst" line per pair. With symmetric
// set, the reversed edge follows each pair.
func WriteEdges(w io.Writer, pairs []Pair, enc *graph.Encoding, symmetric bool) error {
	cw := csv.NewWriter(w)
	for _, p := range pairs {
		src, ok := enc.Index(p.Node)
		if !ok {
			return fmt.Errorf("node %q not encoded", p.Node)
		}
		dst, ok := enc.Index(p.Parent)
		if !ok {
			return fmt.Errorf("node %q not encoded", p.Parent)
		}

		if err := cw.Write([]string{strconv.Itoa(src), strconv.Itoa(dst)}); err != nil {
			return fmt.Errorf("writing edge: %w", err)
		}
		if symmetric {
			if err := cw.Write([]string{strconv.Itoa(dst), strconv.Itoa(src)}); err != nil {
				return fmt.Errorf("writing edge: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFeatures writes the trivial feature table: one zero feature per node.
func WriteFeatures(w io.Writer, enc *graph.Encoding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"idx", "source_idx", "feature"}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for idx := 0; idx < enc.Len(); idx++ {
		s := strconv.Itoa(idx)
		if err := cw.Write([]string{s, s, "0"}); err != nil {
			return fmt.Errorf("writing feature row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDictionary writes "name;index" lines for every encoded node.
func WriteDictionary(w io.Writer, enc *graph.Encoding) error {
	names := enc.Names()
	records := make([][]string, 0, len(names))
	for idx, name := range names {
		records = append(records, []string{name, strconv.Itoa(idx)})
	}
	return parsers.WriteRecords(w, ';', records)
}

// BuildKnowledgeGraph builds the concept graph from graph rows, attaching the
// encoding index to every node that has one.
func BuildKnowledgeGraph(rows []GraphRow, enc *graph.Encoding) *graph.KnowledgeGraph {
	g := graph.NewKnowledgeGraph()

	text := make(map[string]string, len(rows))
	for _, row := range rows {
		text[row.Node] = row.Text
	}

	addConcept := func(name string) *graph.GraphNode {
		id := graph.GenerateID(graph.NodeConcept, name)
		if node := g.GetNode(id); node != nil {
			return node
		}

		idx := -1
		if enc != nil {
			if i, ok := enc.Index(name); ok {
				idx = i
			}
		}
		t, ok := text[name]
		if !ok || t == "" {
			t = graph.NA
		}
		display, category := graph.SplitCategory(name)
		node := &graph.GraphNode{
			ID:       id,
			Label:    graph.NodeConcept,
			Name:     name,
			Text:     t,
			Index:    idx,
			Category: category,
			Properties: map[string]any{
				"display_name": display,
			},
		}
		g.AddNode(node)
		return node
	}

	for _, row := range rows {
		child := addConcept(row.Node)
		if row.Parent == "" {
			continue
		}
		parent := addConcept(row.Parent)

		// Reverse rows repeat an existing link.
		if linked(g, parent.ID, child.ID) {
			continue
		}

		g.AddRelationship(&graph.GraphRelationship{
			ID:     graph.RelationshipID(graph.RelParentOf, child.ID, parent.ID),
			Type:   graph.RelParentOf,
			Source: child.ID,
			Target: parent.ID,
		})
	}

	return g
}

func linked(g *graph.KnowledgeGraph, source, target string) bool {
	for _, rel := range g.GetOutgoing(source, graph.RelParentOf) {
		if rel.Target == target {
			return true
		}
	}
	return false
}
