package storage

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/graph"
)

// HybridSearch combines FTS and vector search using Reciprocal Rank Fusion (RRF).
// k is the RRF constant (typically 60).
func HybridSearch(ctx context.Context, storage StorageBackend, query string, queryVector []float64, limit, k int) ([]HybridSearchResult, error) {
	ftsResults, err := storage.FTSSearch(ctx, query, limit*2)
	if err != nil {
		ftsResults = []SearchResult{}
	}

	var vectorResults []SearchResult
	if len(queryVector) > 0 {
		vectorResults, err = storage.VectorSearch(ctx, queryVector, limit*2)
		if err != nil {
			vectorResults = []SearchResult{}
		}
	}

	rrfScores := make(map[string]float64)
	metadata := make(map[string]SearchResult)

	for _, list := range [][]SearchResult{ftsResults, vectorResults} {
		for i, result := range list {
			rrfScores[result.NodeID] += 1.0 / float64(k+i+1)
			if _, exists := metadata[result.NodeID]; !exists {
				metadata[result.NodeID] = result
			}
		}
	}

	results := make([]HybridSearchResult, 0, len(rrfScores))
	for nodeID, score := range rrfScores {
		meta := metadata[nodeID]
		results = append(results, HybridSearchResult{
			NodeID:   nodeID,
			Score:    score,
			NodeName: meta.NodeName,
			Category: meta.Category,
			Label:    meta.Label,
			Snippet:  meta.Snippet,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].NodeID < results[j].NodeID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched, empty or zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// resultFor fills a search result from a stored node.
func resultFor(node *graph.GraphNode, score float64) SearchResult {
	return SearchResult{
		NodeID:   node.ID,
		Score:    score,
		NodeName: node.Name,
		Category: node.Category,
		Label:    string(node.Label),
		Snippet:  embeddings.Snippet(node),
	}
}
