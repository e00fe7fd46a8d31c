package linkpred

import (
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Benny93/ontolink-go/internal/embeddings"
)

// EmbeddingMatrix stacks the vectors of tokens "0".."n-1". Positions the
// walks never reached get a zero row.
func EmbeddingMatrix(kv *embeddings.KeyedVectors, n int) *mat.Dense {
	out := mat.NewDense(n, kv.Dimensions(), nil)
	for i := 0; i < n; i++ {
		if v, ok := kv.Vector(strconv.Itoa(i)); ok {
			out.SetRow(i, v)
		}
	}
	return out
}

// EdgeEmbeddings returns the Hadamard product of the endpoint rows of each
// edge, or nil for no edges.
func EdgeEmbeddings(emb *mat.Dense, edges []Edge) *mat.Dense {
	if len(edges) == 0 {
		return nil
	}
	_, d := emb.Dims()
	out := mat.NewDense(len(edges), d, nil)
	row := make([]float64, d)
	for i, e := range edges {
		floats.MulTo(row, emb.RawRowView(e[0]), emb.RawRowView(e[1]))
		out.SetRow(i, row)
	}
	return out
}

// labelledExamples stacks positive and negative edge embeddings with 1/0
// labels.
func labelledExamples(emb *mat.Dense, pos, neg []Edge) (*mat.Dense, []float64) {
	edges := make([]Edge, 0, len(pos)+len(neg))
	edges = append(edges, pos...)
	edges = append(edges, neg...)

	labels := make([]float64, len(edges))
	for i := range pos {
		labels[i] = 1
	}
	return EdgeEmbeddings(emb, edges), labels
}
