// Package network assembles the encoded ontology graph into the adjacency
// and feature matrices consumed by embedding and link prediction.
package network

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/Benny93/ontolink-go/internal/parsers"
)

// RootIndex is the synthetic node linked to every other node.
const RootIndex = 0

// ErrDisconnected is returned when the assembled graph is not connected.
var ErrDisconnected = errors.New("graph is not connected")

// Network is an undirected graph over encoded node indices. Row and column
// i of both matrices describe node Order[i].
type Network struct {
	Order     []int
	Adjacency *sparse.CSR
	Features  *mat.Dense
	// FeatureNames labels the feature columns.
	FeatureNames []string
}

// builder keeps nodes in first-appearance order with undirected neighbour sets.
type builder struct {
	order []int
	pos   map[int]int
	adj   []map[int]struct{}
}

func newBuilder() *builder {
	return &builder{pos: make(map[int]int)}
}

func (b *builder) addNode(n int) int {
	if p, ok := b.pos[n]; ok {
		return p
	}
	p := len(b.order)
	b.pos[n] = p
	b.order = append(b.order, n)
	b.adj = append(b.adj, make(map[int]struct{}))
	return p
}

func (b *builder) addEdge(u, v int) {
	pu, pv := b.addNode(u), b.addNode(v)
	b.adj[pu][pv] = struct{}{}
	b.adj[pv][pu] = struct{}{}
}

func (b *builder) connected() bool {
	if len(b.order) == 0 {
		return true
	}
	seen := make([]bool, len(b.order))
	stack := []int{0}
	seen[0] = true
	visited := 1
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for q := range b.adj[p] {
			if !seen[q] {
				seen[q] = true
				visited++
				stack = append(stack, q)
			}
		}
	}
	return visited == len(b.order)
}

// Build assembles the network from an edge list and a feature table. The
// root node is linked to every node of the edge list and to every feature
// row whose index is not a node yet. Nodes without a feature row get zeros.
func Build(edges [][2]int, featureNames []string, features []parsers.FeatureRow) (*Network, error) {
	b := newBuilder()
	for _, e := range edges {
		b.addEdge(e[0], e[1])
	}

	b.addNode(RootIndex)
	for _, n := range append([]int(nil), b.order...) {
		if n != RootIndex {
			b.addEdge(RootIndex, n)
		}
	}

	byIndex := make(map[int][]float64, len(features))
	for _, row := range features {
		if _, ok := b.pos[row.Index]; !ok {
			b.addEdge(row.Index, RootIndex)
		}
		byIndex[row.Index] = row.Values
	}

	if !b.connected() {
		return nil, ErrDisconnected
	}

	n := len(b.order)
	dok := sparse.NewDOK(n, n)
	for p, nbrs := range b.adj {
		for q := range nbrs {
			dok.Set(p, q, 1)
		}
	}

	width := len(featureNames)
	var feats *mat.Dense
	if width > 0 {
		feats = mat.NewDense(n, width, nil)
		for p, node := range b.order {
			values, ok := byIndex[node]
			if !ok {
				continue
			}
			if len(values) != width {
				return nil, fmt.Errorf("node %d: %d feature values, want %d", node, len(values), width)
			}
			feats.SetRow(p, values)
		}
	}

	return &Network{
		Order:        b.order,
		Adjacency:    dok.ToCSR(),
		Features:     feats,
		FeatureNames: append([]string(nil), featureNames...),
	}, nil
}

// NumNodes returns the number of nodes.
func (n *Network) NumNodes() int {
	return len(n.Order)
}

// NumEdges returns the number of undirected edges. Self loops count once.
func (n *Network) NumEdges() int {
	return len(n.Edges())
}

// Edges returns upper-triangle position pairs (i <= j) sorted by row then column.
func (n *Network) Edges() [][2]int {
	var out [][2]int
	n.Adjacency.DoNonZero(func(i, j int, v float64) {
		if i <= j && v != 0 {
			out = append(out, [2]int{i, j})
		}
	})
	slices.SortFunc(out, func(a, b [2]int) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})
	return out
}

// Neighbors returns the sorted positions adjacent to position i.
func (n *Network) Neighbors(i int) []int {
	var out []int
	n.Adjacency.DoRowNonZero(i, func(_, j int, v float64) {
		if v != 0 {
			out = append(out, j)
		}
	})
	slices.Sort(out)
	return out
}

// FromEdges builds a network over positions 0..size-1 from undirected edges.
// It does not add a root or check connectivity; link prediction uses it for
// training graphs with held-out edges removed.
func FromEdges(order []int, edges [][2]int) *Network {
	n := len(order)
	dok := sparse.NewDOK(n, n)
	for _, e := range edges {
		dok.Set(e[0], e[1], 1)
		dok.Set(e[1], e[0], 1)
	}
	return &Network{Order: append([]int(nil), order...), Adjacency: dok.ToCSR()}
}
