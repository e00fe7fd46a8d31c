package embeddings

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/Benny93/ontolink-go/internal/network"
)

// alias is a table for O(1) sampling from a discrete distribution.
type alias struct {
	j []int
	q []float64
}

// aliasSetup builds the alias table for a normalized distribution.
func aliasSetup(probs []float64) alias {
	k := len(probs)
	a := alias{j: make([]int, k), q: make([]float64, k)}

	var smaller, larger []int
	for i, p := range probs {
		a.q[i] = float64(k) * p
		if a.q[i] < 1.0 {
			smaller = append(smaller, i)
		} else {
			larger = append(larger, i)
		}
	}

	for len(smaller) > 0 && len(larger) > 0 {
		small := smaller[len(smaller)-1]
		smaller = smaller[:len(smaller)-1]
		large := larger[len(larger)-1]
		larger = larger[:len(larger)-1]

		a.j[small] = large
		a.q[large] = a.q[large] + a.q[small] - 1.0
		if a.q[large] < 1.0 {
			smaller = append(smaller, large)
		} else {
			larger = append(larger, large)
		}
	}
	return a
}

func (a alias) draw(rng *rand.Rand) int {
	kk := rng.IntN(len(a.j))
	if rng.Float64() < a.q[kk] {
		return kk
	}
	return a.j[kk]
}

func normalize(weights []float64) []float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	out := make([]float64, len(weights))
	if sum == 0 {
		return out
	}
	for i, w := range weights {
		out[i] = w / sum
	}
	return out
}

// WalkGraph samples node2vec walks over a network. P is the return
// parameter and Q the in-out parameter; P = Q = 1 gives DeepWalk.
type WalkGraph struct {
	directed bool
	p, q     float64
	rng      *rand.Rand

	nbrs    [][]int
	weights [][]float64

	aliasNodes []alias
	aliasEdges map[[2]int]alias
}

// NewWalkGraph prepares a walker over the positions of net.
func NewWalkGraph(net *network.Network, directed bool, p, q float64, rng *rand.Rand) *WalkGraph {
	n := net.NumNodes()
	g := &WalkGraph{
		directed: directed,
		p:        p,
		q:        q,
		rng:      rng,
		nbrs:     make([][]int, n),
		weights:  make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		g.nbrs[i] = net.Neighbors(i)
		w := make([]float64, len(g.nbrs[i]))
		for k, j := range g.nbrs[i] {
			w[k] = net.Adjacency.At(i, j)
		}
		g.weights[i] = w
	}
	return g
}

func (g *WalkGraph) hasEdge(u, v int) bool {
	_, ok := slices.BinarySearch(g.nbrs[u], v)
	return ok
}

func (g *WalkGraph) edgeAlias(src, dst int) alias {
	probs := make([]float64, len(g.nbrs[dst]))
	for k, x := range g.nbrs[dst] {
		w := g.weights[dst][k]
		switch {
		case x == src:
			probs[k] = w / g.p
		case g.hasEdge(x, src):
			probs[k] = w
		default:
			probs[k] = w / g.q
		}
	}
	return aliasSetup(normalize(probs))
}

// PreprocessTransitionProbs builds the alias tables that guide the walks.
func (g *WalkGraph) PreprocessTransitionProbs() {
	g.aliasNodes = make([]alias, len(g.nbrs))
	for i := range g.nbrs {
		g.aliasNodes[i] = aliasSetup(normalize(g.weights[i]))
	}

	g.aliasEdges = make(map[[2]int]alias)
	for u, nbrs := range g.nbrs {
		for _, v := range nbrs {
			if g.directed {
				g.aliasEdges[[2]int{u, v}] = g.edgeAlias(u, v)
				continue
			}
			if u > v {
				continue
			}
			g.aliasEdges[[2]int{u, v}] = g.edgeAlias(u, v)
			g.aliasEdges[[2]int{v, u}] = g.edgeAlias(v, u)
		}
	}
}

func (g *WalkGraph) walk(length, start int) []int {
	walk := make([]int, 1, length)
	walk[0] = start
	for len(walk) < length {
		cur := walk[len(walk)-1]
		nbrs := g.nbrs[cur]
		if len(nbrs) == 0 {
			break
		}
		if len(walk) == 1 {
			walk = append(walk, nbrs[g.aliasNodes[cur].draw(g.rng)])
			continue
		}
		prev := walk[len(walk)-2]
		walk = append(walk, nbrs[g.aliasEdges[[2]int{prev, cur}].draw(g.rng)])
	}
	return walk
}

// SimulateWalks runs numWalks rounds; each round shuffles the nodes and
// starts one walk of at most walkLength steps from each.
func (g *WalkGraph) SimulateWalks(ctx context.Context, numWalks, walkLength int) ([][]int, error) {
	if g.aliasNodes == nil {
		return nil, fmt.Errorf("transition probabilities not preprocessed")
	}
	if walkLength < 1 {
		return nil, nil
	}

	nodes := make([]int, len(g.nbrs))
	for i := range nodes {
		nodes[i] = i
	}

	walks := make([][]int, 0, numWalks*len(nodes))
	for iter := 0; iter < numWalks; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g.rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })
		for _, node := range nodes {
			walks = append(walks, g.walk(walkLength, node))
		}
	}
	return walks, nil
}

// WalkSentences renders walks as token sentences for skip-gram training.
func WalkSentences(walks [][]int) [][]string {
	sentences := make([][]string, len(walks))
	for i, walk := range walks {
		s := make([]string, len(walk))
		for k, node := range walk {
			s[k] = strconv.Itoa(node)
		}
		sentences[i] = s
	}
	return sentences
}

// WalkOptions configures the random walks behind LearnNodeVectors.
type WalkOptions struct {
	P          float64
	Q          float64
	NumWalks   int
	WalkLength int
	Directed   bool
	Seed       uint64
}

// DefaultWalkOptions returns DeepWalk-equivalent settings.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{P: 1, Q: 1, NumWalks: 10, WalkLength: 80, Seed: 1}
}

// LearnNodeVectors samples walks over net and trains skip-gram vectors whose
// tokens are matrix positions rendered as decimal strings.
func LearnNodeVectors(ctx context.Context, net *network.Network, walk WalkOptions, opts Options) (*KeyedVectors, error) {
	rng := rand.New(rand.NewPCG(walk.Seed, walk.Seed+1))
	g := NewWalkGraph(net, walk.Directed, walk.P, walk.Q, rng)
	g.PreprocessTransitionProbs()

	walks, err := g.SimulateWalks(ctx, walk.NumWalks, walk.WalkLength)
	if err != nil {
		return nil, fmt.Errorf("simulating walks: %w", err)
	}

	kv, err := Train(ctx, WalkSentences(walks), opts)
	if err != nil {
		return nil, fmt.Errorf("training skip-gram: %w", err)
	}
	return kv, nil
}
