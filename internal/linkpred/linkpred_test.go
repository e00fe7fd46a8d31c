package linkpred

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/network"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewPCG(3, 5))
}

// ringWithChords has 10 nodes and 20 edges: i-(i+1) and i-(i+2) mod 10.
func ringWithChords() *network.Network {
	order := make([]int, 10)
	var edges [][2]int
	for i := range order {
		order[i] = i
		edges = append(edges, ordered(i, (i+1)%10), ordered(i, (i+2)%10))
	}
	return network.FromEdges(order, edges)
}

func TestMaskTestEdges(t *testing.T) {
	t.Parallel()

	t.Run("SizesAndDisjointness", func(t *testing.T) {
		t.Parallel()
		net := ringWithChords()
		split, err := MaskTestEdges(net, 0.3, 0.1, testRNG())
		require.NoError(t, err)

		assert.Len(t, split.TestEdges, 6)
		assert.Len(t, split.ValEdges, 2)
		assert.Len(t, split.TrainEdges, 12)
		assert.Len(t, split.TestFalse, 6)
		assert.Len(t, split.ValFalse, 2)
		assert.Len(t, split.TrainFalse, 12)

		actual := make(edgeSet)
		for _, e := range net.Edges() {
			actual[e] = struct{}{}
		}
		seen := make(edgeSet)
		for _, group := range [][]Edge{split.TestFalse, split.ValFalse, split.TrainFalse} {
			for _, e := range group {
				assert.Less(t, e[0], e[1])
				assert.False(t, actual.has(e), "false edge %v is real", e)
				assert.False(t, seen.has(e), "false edge %v sampled twice", e)
				seen[e] = struct{}{}
			}
		}

		held := make(edgeSet)
		for _, e := range append(append([]Edge{}, split.TestEdges...), split.ValEdges...) {
			held[e] = struct{}{}
		}
		for _, e := range split.TrainEdges {
			assert.False(t, held.has(e))
		}
		assert.Equal(t, 12, split.Train.NumEdges())
	})

	t.Run("TrainingGraphStaysConnected", func(t *testing.T) {
		t.Parallel()
		split, err := MaskTestEdges(ringWithChords(), 0.3, 0.1, testRNG())
		require.NoError(t, err)

		adj := make(adjacencyLists, 10)
		for i := range adj {
			adj[i] = make(map[int]struct{})
		}
		for _, e := range split.TrainEdges {
			adj.add(e)
		}
		for i := 1; i < 10; i++ {
			assert.True(t, adj.reachable(0, i))
		}
	})

	t.Run("BridgesAreKept", func(t *testing.T) {
		t.Parallel()
		// A path has only bridges, so nothing can be held out.
		net := network.FromEdges([]int{0, 1, 2, 3, 4, 5}, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}})
		split, err := MaskTestEdges(net, 0.5, 0.2, testRNG())
		require.NoError(t, err)
		assert.Empty(t, split.TestEdges)
		assert.Empty(t, split.ValEdges)
		assert.Len(t, split.TrainEdges, 5)
	})

	t.Run("SelfLoopsIgnored", func(t *testing.T) {
		t.Parallel()
		net := network.FromEdges([]int{0, 1, 2}, [][2]int{{0, 1}, {1, 1}})
		split, err := MaskTestEdges(net, 0, 0, testRNG())
		require.NoError(t, err)
		assert.Equal(t, []Edge{{0, 1}}, split.TrainEdges)
	})

	t.Run("CompleteGraph", func(t *testing.T) {
		t.Parallel()
		var edges [][2]int
		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				edges = append(edges, [2]int{i, j})
			}
		}
		net := network.FromEdges([]int{0, 1, 2, 3}, edges)
		_, err := MaskTestEdges(net, 0.3, 0.1, testRNG())
		assert.ErrorIs(t, err, ErrNotEnoughNonEdges)
	})
}

func TestROCAUC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		labels []float64
		scores []float64
		want   float64
	}{
		{"Mixed", []float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
		{"Perfect", []float64{0, 1}, []float64{0.2, 0.9}, 1},
		{"Inverted", []float64{1, 0}, []float64{0.2, 0.9}, 0},
		{"Tied", []float64{1, 0}, []float64{0.5, 0.5}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ROCAUC(tt.labels, tt.scores)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := ROCAUC([]float64{1, 1}, []float64{0.1, 0.2})
	assert.ErrorIs(t, err, ErrEmptyClass)

	_, err = ROCAUC([]float64{1}, []float64{0.1, 0.2})
	assert.Error(t, err)
}

func TestAveragePrecision(t *testing.T) {
	t.Parallel()

	got, err := AveragePrecision([]float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8})
	require.NoError(t, err)
	assert.InDelta(t, 0.8333333333, got, 1e-9)

	got, err = AveragePrecision([]float64{1, 0, 1, 0}, []float64{0.5, 0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-9)

	_, err = AveragePrecision([]float64{0, 0}, []float64{0.1, 0.2})
	assert.ErrorIs(t, err, ErrEmptyClass)
}

func TestLogisticRegression(t *testing.T) {
	t.Parallel()

	t.Run("Separable", func(t *testing.T) {
		t.Parallel()
		X := mat.NewDense(6, 1, []float64{-3, -2, -1, 1, 2, 3})
		y := []float64{0, 0, 0, 1, 1, 1}

		lr := &LogisticRegression{C: 1, MaxIter: 100, FitIntercept: true}
		require.NoError(t, lr.Fit(X, y))
		assert.Greater(t, lr.Coef[0], 0.0)

		probs, err := lr.PredictProba(mat.NewDense(2, 1, []float64{-2.5, 2.5}))
		require.NoError(t, err)
		assert.Less(t, probs[0], 0.5)
		assert.Greater(t, probs[1], 0.5)
	})

	t.Run("RegularizationShrinks", func(t *testing.T) {
		t.Parallel()
		X := mat.NewDense(4, 1, []float64{-1, -0.5, 0.5, 1})
		y := []float64{0, 0, 1, 1}

		loose := &LogisticRegression{C: 100, MaxIter: 200, FitIntercept: true}
		tight := &LogisticRegression{C: 0.01, MaxIter: 200, FitIntercept: true}
		require.NoError(t, loose.Fit(X, y))
		require.NoError(t, tight.Fit(X, y))
		assert.Greater(t, loose.Coef[0], tight.Coef[0])
	})

	t.Run("SingleClass", func(t *testing.T) {
		t.Parallel()
		lr := &LogisticRegression{C: 1, MaxIter: 100, FitIntercept: true}
		err := lr.Fit(mat.NewDense(2, 1, []float64{1, 2}), []float64{1, 1})
		assert.ErrorIs(t, err, ErrEmptyClass)
	})

	t.Run("WidthMismatch", func(t *testing.T) {
		t.Parallel()
		lr := &LogisticRegression{Coef: []float64{1, 2}}
		_, err := lr.PredictProba(mat.NewDense(1, 3, nil))
		assert.Error(t, err)
	})
}

func TestEdgeEmbeddings(t *testing.T) {
	t.Parallel()

	emb := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	got := EdgeEmbeddings(emb, []Edge{{0, 2}, {1, 1}})

	assert.Equal(t, []float64{5, 12}, got.RawRowView(0))
	assert.Equal(t, []float64{9, 16}, got.RawRowView(1))
	assert.Nil(t, EdgeEmbeddings(emb, nil))
}

func TestEmbeddingMatrix(t *testing.T) {
	t.Parallel()

	kv, err := embeddings.NewKeyedVectors([]string{"1", "0"}, mat.NewDense(2, 2, []float64{1, 1, 2, 2}))
	require.NoError(t, err)

	m := EmbeddingMatrix(kv, 3)
	assert.Equal(t, []float64{2, 2}, m.RawRowView(0))
	assert.Equal(t, []float64{1, 1}, m.RawRowView(1))
	assert.Equal(t, []float64{0, 0}, m.RawRowView(2))
}

func TestRun(t *testing.T) {
	t.Parallel()

	// Ring over 1..20; Build links the root 0 to every node.
	var edges [][2]int
	for i := 1; i <= 20; i++ {
		edges = append(edges, [2]int{i, i%20 + 1})
	}
	net, err := network.Build(edges, nil, nil)
	require.NoError(t, err)

	p := DefaultParams()
	p.Seed = 9
	p.Walk.NumWalks = 2
	p.Walk.WalkLength = 10
	p.SkipGram.Dimensions = 8
	p.SkipGram.Workers = 1

	report, err := Run(context.Background(), net, p, nil)
	require.NoError(t, err)

	assert.Equal(t, 21, report.Nodes)
	assert.Equal(t, 40, report.Edges)
	assert.Equal(t, 12, report.TestPositive)
	assert.Equal(t, 4, report.ValPositive)
	assert.Equal(t, 24, report.TrainPositive)
	assert.Equal(t, report.TrainPositive, report.TrainNegative)
	for _, s := range []float64{report.ValROC, report.ValAP, report.TestROC, report.TestAP} {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.NotNil(t, report.Embeddings)
}
