package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/graph"
	"github.com/Benny93/ontolink-go/internal/network"
)

// MemoryBackend is an in-memory implementation of StorageBackend, used by
// tests and one-shot runs that do not need a database on disk.
type MemoryBackend struct {
	mu         sync.RWMutex
	nodes      map[string]*graph.GraphNode
	rels       map[string]*graph.GraphRelationship
	embeddings map[string][]float64
	postings   map[string]map[string]int // token -> node ID -> frequency
	network    *NetworkData
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		nodes:      make(map[string]*graph.GraphNode),
		rels:       make(map[string]*graph.GraphRelationship),
		embeddings: make(map[string][]float64),
		postings:   make(map[string]map[string]int),
	}
}

// Initialize implements StorageBackend.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	return nil
}

// Close implements StorageBackend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = make(map[string]*graph.GraphNode)
	m.rels = make(map[string]*graph.GraphRelationship)
	m.embeddings = make(map[string][]float64)
	m.postings = make(map[string]map[string]int)
	m.network = nil
	return nil
}

// BulkLoad implements StorageBackend.
func (m *MemoryBackend) BulkLoad(ctx context.Context, g *graph.KnowledgeGraph) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes = make(map[string]*graph.GraphNode)
	m.rels = make(map[string]*graph.GraphRelationship)
	m.embeddings = make(map[string][]float64)
	m.postings = make(map[string]map[string]int)

	for node := range g.IterNodes() {
		m.nodes[node.ID] = node
		m.indexNode(node)
	}
	for rel := range g.IterRelationships() {
		m.rels[rel.ID] = rel
	}
	return nil
}

// indexNode replaces the postings of node. Caller must hold the write lock.
func (m *MemoryBackend) indexNode(node *graph.GraphNode) {
	for token, ids := range m.postings {
		delete(ids, node.ID)
		if len(ids) == 0 {
			delete(m.postings, token)
		}
	}
	for token, n := range termFrequencies(node.Name + " " + embeddings.ConceptText(node)) {
		if m.postings[token] == nil {
			m.postings[token] = make(map[string]int)
		}
		m.postings[token][node.ID] = n
	}
}

// AddNodes implements StorageBackend.
func (m *MemoryBackend) AddNodes(ctx context.Context, nodes []*graph.GraphNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, node := range nodes {
		m.nodes[node.ID] = node
		m.indexNode(node)
	}
	return nil
}

// GetNode implements StorageBackend.
func (m *MemoryBackend) GetNode(ctx context.Context, nodeID string) (*graph.GraphNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[nodeID], nil
}

// GetNodesByLabel implements StorageBackend.
func (m *MemoryBackend) GetNodesByLabel(ctx context.Context, label string) []*graph.GraphNode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nodes []*graph.GraphNode
	for _, node := range m.nodes {
		if string(node.Label) == label {
			nodes = append(nodes, node)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// FindByName implements StorageBackend.
func (m *MemoryBackend) FindByName(ctx context.Context, name string) (*graph.GraphNode, error) {
	return m.GetNode(ctx, graph.GenerateID(graph.NodeConcept, name))
}

// AddRelationships implements StorageBackend.
func (m *MemoryBackend) AddRelationships(ctx context.Context, rels []*graph.GraphRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rel := range rels {
		m.rels[rel.ID] = rel
	}
	return nil
}

// Neighbors implements StorageBackend.
func (m *MemoryBackend) Neighbors(ctx context.Context, nodeID string, relTypes ...graph.RelType) ([]*graph.GraphNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[graph.RelType]bool, len(relTypes))
	for _, t := range relTypes {
		wanted[t] = true
	}

	seen := make(map[string]bool)
	var result []*graph.GraphNode
	for _, rel := range m.rels {
		if len(wanted) > 0 && !wanted[rel.Type] {
			continue
		}
		var other string
		switch nodeID {
		case rel.Source:
			other = rel.Target
		case rel.Target:
			other = rel.Source
		default:
			continue
		}
		if node, ok := m.nodes[other]; ok && !seen[other] {
			seen[other] = true
			result = append(result, node)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// FTSSearch implements StorageBackend.
func (m *MemoryBackend) FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scores := make(map[string]float64)
	for _, token := range tokenize(query) {
		for id, n := range m.postings[token] {
			scores[id] += float64(n)
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		if node, ok := m.nodes[id]; ok {
			results = append(results, resultFor(node, score))
		}
	}
	sortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// VectorSearch implements StorageBackend.
func (m *MemoryBackend) VectorSearch(ctx context.Context, vector []float64, limit int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SearchResult
	for id, emb := range m.embeddings {
		node, ok := m.nodes[id]
		if !ok {
			continue
		}
		if sim := CosineSimilarity(vector, emb); sim > 0 {
			results = append(results, resultFor(node, sim))
		}
	}
	sortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// RebuildFTSIndexes implements StorageBackend.
func (m *MemoryBackend) RebuildFTSIndexes(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.postings = make(map[string]map[string]int)
	for _, node := range m.nodes {
		m.indexNode(node)
	}
	return nil
}

// StoreEmbeddings implements StorageBackend.
func (m *MemoryBackend) StoreEmbeddings(ctx context.Context, embeddings []NodeEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, emb := range embeddings {
		m.embeddings[emb.NodeID] = append([]float64(nil), emb.Embedding...)
	}
	return nil
}

// GetEmbedding implements StorageBackend.
func (m *MemoryBackend) GetEmbedding(ctx context.Context, nodeID string) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.embeddings[nodeID], nil
}

// SaveNetwork implements StorageBackend.
func (m *MemoryBackend) SaveNetwork(ctx context.Context, net *network.Network) error {
	data := NewNetworkData(net)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.network = &data
	return nil
}

// LoadNetwork implements StorageBackend.
func (m *MemoryBackend) LoadNetwork(ctx context.Context) (*network.Network, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.network == nil {
		return nil, ErrNoNetwork
	}
	return m.network.Network()
}

// NodeCount returns the number of stored nodes.
func (m *MemoryBackend) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// RelationshipCount returns the number of stored relationships.
func (m *MemoryBackend) RelationshipCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rels)
}

// HybridSearch combines FTS and vector search using RRF.
func (m *MemoryBackend) HybridSearch(ctx context.Context, query string, queryVector []float64, limit int) ([]HybridSearchResult, error) {
	return HybridSearch(ctx, m, query, queryVector, limit, 60)
}
