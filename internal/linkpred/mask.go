// Package linkpred evaluates node embeddings by hiding part of the edges of
// a network and training a classifier to tell them apart from non-edges.
package linkpred

import (
	"errors"
	"math"
	"math/rand/v2"

	"github.com/Benny93/ontolink-go/internal/network"
)

var (
	// ErrNotEnoughNonEdges is returned when the graph is too dense to
	// sample the requested number of false edges.
	ErrNotEnoughNonEdges = errors.New("not enough non-edges to sample false edges")

	// ErrEmptyClass is returned when positive or negative examples are missing.
	ErrEmptyClass = errors.New("labels must contain both classes")
)

// Edge is an undirected position pair with Edge[0] < Edge[1].
type Edge = [2]int

// Split is a train/validation/test partition of a network's edges, each
// with a matching set of sampled non-edges.
type Split struct {
	Train      *network.Network
	TrainEdges []Edge
	TrainFalse []Edge
	ValEdges   []Edge
	ValFalse   []Edge
	TestEdges  []Edge
	TestFalse  []Edge
}

type edgeSet map[Edge]struct{}

func (s edgeSet) has(e Edge) bool {
	_, ok := s[e]
	return ok
}

func ordered(i, j int) Edge {
	if i > j {
		i, j = j, i
	}
	return Edge{i, j}
}

// adjacencyLists is a mutable undirected graph used while holding out edges.
type adjacencyLists []map[int]struct{}

func (a adjacencyLists) remove(e Edge) {
	delete(a[e[0]], e[1])
	delete(a[e[1]], e[0])
}

func (a adjacencyLists) add(e Edge) {
	a[e[0]][e[1]] = struct{}{}
	a[e[1]][e[0]] = struct{}{}
}

// reachable reports whether dst can be reached from src.
func (a adjacencyLists) reachable(src, dst int) bool {
	seen := map[int]bool{src: true}
	queue := []int{src}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		if u == dst {
			return true
		}
		for v := range a[u] {
			if !seen[v] {
				seen[v] = true
				queue = append(queue, v)
			}
		}
	}
	return false
}

// MaskTestEdges holds out floor(E*testFrac) test and floor(E*valFrac)
// validation edges, skipping any edge whose removal would split a connected
// component, and samples equally many non-edges for every part. Self loops
// are ignored. Fewer held-out edges than requested are returned when the
// graph has too few removable edges.
func MaskTestEdges(net *network.Network, testFrac, valFrac float64, rng *rand.Rand) (*Split, error) {
	n := net.NumNodes()

	var edges []Edge
	for _, e := range net.Edges() {
		if e[0] != e[1] {
			edges = append(edges, e)
		}
	}
	all := make(edgeSet, len(edges))
	adj := make(adjacencyLists, n)
	for i := range adj {
		adj[i] = make(map[int]struct{})
	}
	for _, e := range edges {
		all[e] = struct{}{}
		adj.add(e)
	}

	numTest := int(math.Floor(float64(len(edges)) * testFrac))
	numVal := int(math.Floor(float64(len(edges)) * valFrac))

	shuffled := append([]Edge(nil), edges...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	held := make(edgeSet)
	var test, val []Edge
	for _, e := range shuffled {
		if len(test) >= numTest && len(val) >= numVal {
			break
		}
		adj.remove(e)
		if !adj.reachable(e[0], e[1]) {
			adj.add(e)
			continue
		}
		held[e] = struct{}{}
		if len(test) < numTest {
			test = append(test, e)
		} else {
			val = append(val, e)
		}
	}

	var train []Edge
	for _, e := range edges {
		if !held.has(e) {
			train = append(train, e)
		}
	}

	maxNonEdges := n*(n-1)/2 - len(edges)
	if len(test)+len(val)+len(train) > maxNonEdges {
		return nil, ErrNotEnoughNonEdges
	}

	sampled := make(edgeSet)
	sample := func(count int) []Edge {
		out := make([]Edge, 0, count)
		for len(out) < count {
			i, j := rng.IntN(n), rng.IntN(n)
			if i == j {
				continue
			}
			e := ordered(i, j)
			if all.has(e) || sampled.has(e) {
				continue
			}
			sampled[e] = struct{}{}
			out = append(out, e)
		}
		return out
	}

	testFalse := sample(len(test))
	valFalse := sample(len(val))
	trainFalse := sample(len(train))

	return &Split{
		Train:      network.FromEdges(net.Order, train),
		TrainEdges: train,
		TrainFalse: trainFalse,
		ValEdges:   val,
		ValFalse:   valFalse,
		TestEdges:  test,
		TestFalse:  testFalse,
	}, nil
}
