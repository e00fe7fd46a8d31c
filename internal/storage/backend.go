// Package storage provides the storage backend interface for ontolink.
//
// It defines the StorageBackend protocol that all storage implementations
// must satisfy, along with common types used across backends.
package storage

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/Benny93/ontolink-go/internal/graph"
	"github.com/Benny93/ontolink-go/internal/network"
)

// ErrNoNetwork is returned by LoadNetwork before any network was saved.
var ErrNoNetwork = errors.New("no network stored")

// SearchResult represents a search result from the storage backend.
type SearchResult struct {
	// NodeID is the ID of the matching node.
	NodeID string

	// Score is the relevance score (higher is better).
	Score float64

	// NodeName is the name of the node.
	NodeName string

	// Category is the concept category, or NA.
	Category string

	// Label is the node label.
	Label string

	// Snippet is the concept text, shortened.
	Snippet string
}

// NodeEmbedding represents a vector embedding for a node.
type NodeEmbedding struct {
	// NodeID is the ID of the node.
	NodeID string

	// Embedding is the learned node vector.
	Embedding []float64
}

// HybridSearchResult represents a result from hybrid search.
type HybridSearchResult struct {
	// NodeID is the ID of the matching node.
	NodeID string

	// Score is the RRF fused score (higher is better).
	Score float64

	NodeName string
	Category string
	Label    string
	Snippet  string
}

// NetworkData is the serialized form of a network.Network. Edges are
// upper-triangle matrix positions.
type NetworkData struct {
	Order        []int       `json:"order"`
	Edges        [][2]int    `json:"edges"`
	FeatureNames []string    `json:"feature_names,omitempty"`
	Features     [][]float64 `json:"features,omitempty"`
}

// NewNetworkData snapshots net.
func NewNetworkData(net *network.Network) NetworkData {
	data := NetworkData{
		Order:        append([]int(nil), net.Order...),
		Edges:        net.Edges(),
		FeatureNames: append([]string(nil), net.FeatureNames...),
	}
	if net.Features != nil {
		r, _ := net.Features.Dims()
		data.Features = make([][]float64, r)
		for i := range data.Features {
			data.Features[i] = mat.Row(nil, i, net.Features)
		}
	}
	return data
}

// Network rebuilds the network from the snapshot.
func (d NetworkData) Network() (*network.Network, error) {
	net := network.FromEdges(d.Order, d.Edges)
	net.FeatureNames = append([]string(nil), d.FeatureNames...)
	if len(d.Features) == 0 {
		return net, nil
	}
	if len(d.Features) != len(d.Order) {
		return nil, fmt.Errorf("%d feature rows for %d nodes", len(d.Features), len(d.Order))
	}
	width := len(d.Features[0])
	net.Features = mat.NewDense(len(d.Features), width, nil)
	for i, row := range d.Features {
		if len(row) != width {
			return nil, fmt.Errorf("feature row %d has %d values, want %d", i, len(row), width)
		}
		net.Features.SetRow(i, row)
	}
	return net, nil
}

// StorageBackend defines the interface for storage implementations.
//
// Implementations must be thread-safe and support concurrent access.
type StorageBackend interface {
	// Lifecycle methods

	// Initialize opens or creates the storage backend at the given path.
	// If readOnly is true, the backend is opened in read-only mode.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the backend.
	Close() error

	// Bulk operations

	// BulkLoad replaces the graph part of the store with the contents of g.
	BulkLoad(ctx context.Context, g *graph.KnowledgeGraph) error

	// Node operations

	// AddNodes inserts or replaces nodes.
	AddNodes(ctx context.Context, nodes []*graph.GraphNode) error

	// GetNode returns a single node by ID, or nil if not found.
	GetNode(ctx context.Context, nodeID string) (*graph.GraphNode, error)

	// GetNodesByLabel returns all nodes with the given label, sorted by ID.
	GetNodesByLabel(ctx context.Context, label string) []*graph.GraphNode

	// FindByName returns the concept with the given name, or nil.
	FindByName(ctx context.Context, name string) (*graph.GraphNode, error)

	// Relationship operations

	// AddRelationships inserts relationships into the storage.
	AddRelationships(ctx context.Context, rels []*graph.GraphRelationship) error

	// Neighbors returns nodes linked to nodeID in either direction, sorted
	// by ID. If relTypes is given only those relationships are followed.
	Neighbors(ctx context.Context, nodeID string, relTypes ...graph.RelType) ([]*graph.GraphNode, error)

	// Search

	// FTSSearch matches query tokens against concept names and text.
	FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// VectorSearch finds nodes closest to the given vector.
	VectorSearch(ctx context.Context, vector []float64, limit int) ([]SearchResult, error)

	// HybridSearch combines FTS and vector search using RRF.
	HybridSearch(ctx context.Context, query string, queryVector []float64, limit int) ([]HybridSearchResult, error)

	// Maintenance

	// RebuildFTSIndexes drops and recreates all full-text search indexes.
	RebuildFTSIndexes(ctx context.Context) error

	// Embeddings

	// StoreEmbeddings persists node embeddings.
	StoreEmbeddings(ctx context.Context, embeddings []NodeEmbedding) error

	// GetEmbedding returns the vector of a node, or nil.
	GetEmbedding(ctx context.Context, nodeID string) ([]float64, error)

	// Network

	// SaveNetwork replaces the stored network.
	SaveNetwork(ctx context.Context, net *network.Network) error

	// LoadNetwork returns the stored network or ErrNoNetwork.
	LoadNetwork(ctx context.Context) (*network.Network, error)

	// Counts

	NodeCount() int
	RelationshipCount() int
}
