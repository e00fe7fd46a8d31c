// Package layout places concepts on a plane and groups them into clusters
// for plotting.
package layout

import (
	"fmt"

	"github.com/danaugrs/go-tsne/tsne"
	"gonum.org/v1/gonum/mat"

	"github.com/Benny93/ontolink-go/internal/embeddings"
)

// Point is a named 2-D coordinate.
type Point struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Assignment is the cluster of a named concept.
type Assignment struct {
	Name    string `json:"name"`
	Cluster int    `json:"cluster"`
}

// TSNEOptions configures the t-SNE projection.
type TSNEOptions struct {
	Perplexity   float64
	LearningRate float64
	MaxIter      int
	Verbose      bool
}

// DefaultTSNEOptions mirrors the usual t-SNE defaults.
func DefaultTSNEOptions() TSNEOptions {
	return TSNEOptions{Perplexity: 30, LearningRate: 200, MaxIter: 300}
}

// Coordinates projects the vectors of tokens onto two dimensions. Points are
// named by token and returned in token order. Perplexity is capped so that
// small inputs still converge.
func Coordinates(kv *embeddings.KeyedVectors, tokens []string, opts TSNEOptions) ([]Point, error) {
	points := make([]Point, len(tokens))
	if len(tokens) == 0 {
		return points, nil
	}

	data := mat.NewDense(len(tokens), kv.Dimensions(), nil)
	for i, tok := range tokens {
		v, ok := kv.Vector(tok)
		if !ok {
			return nil, fmt.Errorf("no vector for token %q", tok)
		}
		data.SetRow(i, v)
		points[i].Name = tok
	}
	if len(tokens) == 1 {
		return points, nil
	}

	perplexity := opts.Perplexity
	if limit := float64(len(tokens)-1) / 3; perplexity > limit {
		perplexity = limit
	}
	if perplexity < 1 {
		perplexity = 1
	}

	t := tsne.NewTSNE(2, perplexity, opts.LearningRate, opts.MaxIter, opts.Verbose)
	t.EmbedData(data, nil)
	for i := range points {
		points[i].X = t.Y.At(i, 0)
		points[i].Y = t.Y.At(i, 1)
	}
	return points, nil
}
