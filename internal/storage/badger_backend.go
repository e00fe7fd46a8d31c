package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/ontolink-go/internal/graph"
	"github.com/Benny93/ontolink-go/internal/network"
)

// Key prefixes for different data types
const (
	prefixNode      = "n:"     // node data
	prefixRel       = "r:"     // relationship data
	prefixIndex     = "i:"     // adjacency indexes
	prefixIncoming  = "i:in:"  // incoming relationships
	prefixOutgoing  = "i:out:" // outgoing relationships
	prefixEmbedding = "e:"     // embedding data
	keyNetwork      = "net"    // serialized network
)

// BadgerBackend is a BadgerDB-backed storage implementation.
type BadgerBackend struct {
	db                *badger.DB
	fts               *FTSIndex
	mu                sync.RWMutex
	nodeCount         int
	relationshipCount int
}

// NewBadgerBackend creates a new BadgerDB backend.
func NewBadgerBackend() *BadgerBackend {
	return &BadgerBackend{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerBackend) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR)

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}
	b.fts = NewFTSIndex(b.db)

	b.nodeCount = b.countPrefix(prefixNode)
	b.relationshipCount = b.countPrefix(prefixRel)
	return nil
}

// countPrefix counts keys under prefix. Caller must hold the lock.
func (b *BadgerBackend) countPrefix(prefix string) int {
	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	for it.Rewind(); it.Valid(); it.Next() {
		count++
	}
	return count
}

// Close releases all resources held by the backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	b.fts = nil
	return err
}

// BulkLoad replaces nodes, relationships, embeddings and the search index
// with the contents of the graph. The stored network is kept.
func (b *BadgerBackend) BulkLoad(ctx context.Context, g *graph.KnowledgeGraph) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.db.DropPrefix(
		[]byte(prefixNode), []byte(prefixRel), []byte(prefixIndex), []byte(prefixEmbedding),
	); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}
	if err := b.fts.Clear(); err != nil {
		return fmt.Errorf("clearing search index: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	b.nodeCount = 0
	b.relationshipCount = 0

	nodes := g.Nodes()
	for _, node := range nodes {
		data, err := json.Marshal(node)
		if err != nil {
			return fmt.Errorf("marshaling node: %w", err)
		}
		if err := wb.Set(b.nodeKey(node.ID), data); err != nil {
			return fmt.Errorf("setting node: %w", err)
		}
		b.nodeCount++
	}

	for rel := range g.IterRelationships() {
		data, err := json.Marshal(rel)
		if err != nil {
			return fmt.Errorf("marshaling relationship: %w", err)
		}
		if err := wb.Set(b.relKey(rel.ID), data); err != nil {
			return fmt.Errorf("setting relationship: %w", err)
		}
		b.relationshipCount++

		outKey, inKey := indexKeys(rel)
		if err := wb.Set(outKey, []byte(rel.ID)); err != nil {
			return fmt.Errorf("setting outgoing index: %w", err)
		}
		if err := wb.Set(inKey, []byte(rel.ID)); err != nil {
			return fmt.Errorf("setting incoming index: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		return err
	}
	return b.fts.IndexNodes(nodes)
}

// indexKeys returns the adjacency index keys of a relationship:
// i:out:{source}:{type}:{id} and i:in:{target}:{type}:{id}.
func indexKeys(rel *graph.GraphRelationship) ([]byte, []byte) {
	out := fmt.Sprintf("%s%s:%s:%s", prefixOutgoing, rel.Source, rel.Type, rel.ID)
	in := fmt.Sprintf("%s%s:%s:%s", prefixIncoming, rel.Target, rel.Type, rel.ID)
	return []byte(out), []byte(in)
}

// AddNodes inserts or replaces nodes and reindexes them for search.
func (b *BadgerBackend) AddNodes(ctx context.Context, nodes []*graph.GraphNode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	txn := b.db.NewTransaction(true)
	defer txn.Discard()

	added := 0
	for _, node := range nodes {
		data, err := json.Marshal(node)
		if err != nil {
			return fmt.Errorf("marshaling node: %w", err)
		}
		if _, err := txn.Get(b.nodeKey(node.ID)); errors.Is(err, badger.ErrKeyNotFound) {
			added++
		}
		if err := txn.Set(b.nodeKey(node.ID), data); err != nil {
			return fmt.Errorf("setting node: %w", err)
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	b.nodeCount += added

	return b.fts.IndexNodes(nodes)
}

// GetNode returns a single node by ID, or nil if not found.
func (b *BadgerBackend) GetNode(ctx context.Context, nodeID string) (*graph.GraphNode, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	txn := b.db.NewTransaction(false)
	defer txn.Discard()
	return b.getNode(txn, nodeID)
}

// getNode reads a node inside txn, returning nil when it does not exist.
func (b *BadgerBackend) getNode(txn *badger.Txn, nodeID string) (*graph.GraphNode, error) {
	item, err := txn.Get(b.nodeKey(nodeID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting node: %w", err)
	}

	var node graph.GraphNode
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &node)
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling node: %w", err)
	}
	return &node, nil
}

// GetNodesByLabel returns all nodes with the given label in ID order.
func (b *BadgerBackend) GetNodesByLabel(ctx context.Context, label string) []*graph.GraphNode {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var nodes []*graph.GraphNode

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixNode)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var node graph.GraphNode
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &node)
		}); err != nil {
			continue
		}

		if string(node.Label) == label {
			nodes = append(nodes, &node)
		}
	}

	return nodes
}

// FindByName returns the concept with the given name, or nil.
func (b *BadgerBackend) FindByName(ctx context.Context, name string) (*graph.GraphNode, error) {
	return b.GetNode(ctx, graph.GenerateID(graph.NodeConcept, name))
}

// AddRelationships inserts relationships into the storage.
func (b *BadgerBackend) AddRelationships(ctx context.Context, rels []*graph.GraphRelationship) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	txn := b.db.NewTransaction(true)
	defer txn.Discard()

	added := 0
	for _, rel := range rels {
		data, err := json.Marshal(rel)
		if err != nil {
			return fmt.Errorf("marshaling relationship: %w", err)
		}
		if _, err := txn.Get(b.relKey(rel.ID)); errors.Is(err, badger.ErrKeyNotFound) {
			added++
		}
		if err := txn.Set(b.relKey(rel.ID), data); err != nil {
			return fmt.Errorf("setting relationship: %w", err)
		}

		outKey, inKey := indexKeys(rel)
		if err := txn.Set(outKey, []byte(rel.ID)); err != nil {
			return fmt.Errorf("setting outgoing index: %w", err)
		}
		if err := txn.Set(inKey, []byte(rel.ID)); err != nil {
			return fmt.Errorf("setting incoming index: %w", err)
		}
	}

	if err := txn.Commit(); err != nil {
		return err
	}
	b.relationshipCount += added
	return nil
}

// Neighbors returns nodes linked to nodeID in either direction.
func (b *BadgerBackend) Neighbors(ctx context.Context, nodeID string, relTypes ...graph.RelType) ([]*graph.GraphNode, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	seen := make(map[string]bool)
	var result []*graph.GraphNode
	for _, dir := range []string{prefixOutgoing, prefixIncoming} {
		rels, err := b.adjacent(txn, dir, nodeID, relTypes)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			otherID := rel.Target
			if dir == prefixIncoming {
				otherID = rel.Source
			}
			if seen[otherID] {
				continue
			}
			node, err := b.getNode(txn, otherID)
			if err != nil {
				return nil, err
			}
			if node != nil {
				seen[otherID] = true
				result = append(result, node)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// adjacent loads the relationships indexed under dir for nodeID.
func (b *BadgerBackend) adjacent(txn *badger.Txn, dir, nodeID string, relTypes []graph.RelType) ([]*graph.GraphRelationship, error) {
	wanted := make(map[graph.RelType]bool, len(relTypes))
	for _, t := range relTypes {
		wanted[t] = true
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(dir + nodeID + ":")
	it := txn.NewIterator(opts)
	defer it.Close()

	var rels []*graph.GraphRelationship
	for it.Rewind(); it.Valid(); it.Next() {
		var relID string
		if err := it.Item().Value(func(val []byte) error {
			relID = string(val)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("reading rel ID: %w", err)
		}

		relItem, err := txn.Get(b.relKey(relID))
		if err != nil {
			continue
		}
		var rel graph.GraphRelationship
		if err := relItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &rel)
		}); err != nil {
			continue
		}

		// Node IDs may contain ':' so the prefix can match longer IDs.
		end := rel.Source
		if dir == prefixIncoming {
			end = rel.Target
		}
		if end != nodeID || (len(wanted) > 0 && !wanted[rel.Type]) {
			continue
		}
		rels = append(rels, &rel)
	}
	return rels, nil
}

// FTSSearch performs full-text search over concept names and text.
func (b *BadgerBackend) FTSSearch(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fts.Search(query, limit)
}

// VectorSearch finds nodes closest to the given vector using cosine similarity.
func (b *BadgerBackend) VectorSearch(ctx context.Context, vector []float64, limit int) ([]SearchResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	txn := b.db.NewTransaction(false)
	defer txn.Discard()

	var scored []SearchResult

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixEmbedding)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var embedding []float64
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &embedding)
		}); err != nil {
			continue
		}

		sim := CosineSimilarity(vector, embedding)
		if sim > 0 {
			nodeID := strings.TrimPrefix(string(item.Key()), prefixEmbedding)
			scored = append(scored, SearchResult{NodeID: nodeID, Score: sim})
		}
	}

	sortResults(scored)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	results := make([]SearchResult, 0, len(scored))
	for _, sr := range scored {
		node, err := b.getNode(txn, sr.NodeID)
		if err != nil || node == nil {
			continue
		}
		results = append(results, resultFor(node, sr.Score))
	}
	return results, nil
}

// StoreEmbeddings persists node embeddings.
func (b *BadgerBackend) StoreEmbeddings(ctx context.Context, embeddings []NodeEmbedding) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, emb := range embeddings {
		data, err := json.Marshal(emb.Embedding)
		if err != nil {
			return fmt.Errorf("marshaling embedding: %w", err)
		}
		if err := wb.Set([]byte(prefixEmbedding+emb.NodeID), data); err != nil {
			return fmt.Errorf("setting embedding: %w", err)
		}
	}
	return wb.Flush()
}

// GetEmbedding returns the vector of a node, or nil.
func (b *BadgerBackend) GetEmbedding(ctx context.Context, nodeID string) ([]float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var embedding []float64
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixEmbedding + nodeID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &embedding)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("getting embedding: %w", err)
	}
	return embedding, nil
}

// SaveNetwork replaces the stored network.
func (b *BadgerBackend) SaveNetwork(ctx context.Context, net *network.Network) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := json.Marshal(NewNetworkData(net))
	if err != nil {
		return fmt.Errorf("marshaling network: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyNetwork), data)
	})
}

// LoadNetwork returns the stored network or ErrNoNetwork.
func (b *BadgerBackend) LoadNetwork(ctx context.Context) (*network.Network, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var data NetworkData
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyNetwork))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoNetwork
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &data)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading network: %w", err)
	}
	return data.Network()
}

// RebuildFTSIndexes drops and recreates the full-text search index.
func (b *BadgerBackend) RebuildFTSIndexes(ctx context.Context) error {
	nodes := b.GetNodesByLabel(ctx, string(graph.NodeConcept))

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fts.Clear(); err != nil {
		return err
	}
	return b.fts.IndexNodes(nodes)
}

// nodeKey returns the BadgerDB key for a node.
func (b *BadgerBackend) nodeKey(nodeID string) []byte {
	return []byte(prefixNode + nodeID)
}

// relKey returns the BadgerDB key for a relationship.
func (b *BadgerBackend) relKey(relID string) []byte {
	return []byte(prefixRel + relID)
}

// NodeCount returns the node count.
func (b *BadgerBackend) NodeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nodeCount
}

// RelationshipCount returns the relationship count.
func (b *BadgerBackend) RelationshipCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.relationshipCount
}

// HybridSearch combines FTS and vector search using RRF.
func (b *BadgerBackend) HybridSearch(ctx context.Context, query string, queryVector []float64, limit int) ([]HybridSearchResult, error) {
	return HybridSearch(ctx, b, query, queryVector, limit, 60)
}
