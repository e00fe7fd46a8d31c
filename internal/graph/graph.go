// Package graph provides the in-memory ontology graph for ontolink.
//
// It provides a lightweight, map-backed graph that stores GraphNode and
// GraphRelationship instances with O(1) lookups by ID. Secondary indexes
// on label, relationship type, and adjacency lists keep queries linear in
// the size of the result rather than the size of the graph.
package graph

import (
	"sort"
	"sync"
)

// KnowledgeGraph is an in-memory directed graph of ontology concepts and
// their relationships.
//
// Nodes are keyed by their ID string; relationships are keyed likewise.
// Removing a node cascades to any relationship where the node appears as
// source or target. Nodes() preserves insertion order.
type KnowledgeGraph struct {
	mu            sync.RWMutex
	nodes         map[string]*GraphNode
	order         []string
	relationships map[string]*GraphRelationship

	// Secondary indexes, kept in sync by add/remove helpers.
	byLabel   map[NodeLabel]map[string]*GraphNode
	byRelType map[RelType]map[string]*GraphRelationship
	outgoing  map[string]map[string]*GraphRelationship
	incoming  map[string]map[string]*GraphRelationship
}

// NewKnowledgeGraph creates a new empty knowledge graph.
func NewKnowledgeGraph() *KnowledgeGraph {
	return &KnowledgeGraph{
		nodes:         make(map[string]*GraphNode),
		relationships: make(map[string]*GraphRelationship),
		byLabel:       make(map[NodeLabel]map[string]*GraphNode),
		byRelType:     make(map[RelType]map[string]*GraphRelationship),
		outgoing:      make(map[string]map[string]*GraphRelationship),
		incoming:      make(map[string]map[string]*GraphRelationship),
	}
}

// NodeCount returns the number of nodes without list materialization.
func (g *KnowledgeGraph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// RelationshipCount returns the number of relationships without list materialization.
func (g *KnowledgeGraph) RelationshipCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.relationships)
}

// CountNodesByLabel returns the count of nodes with the given label.
func (g *KnowledgeGraph) CountNodesByLabel(label NodeLabel) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if nodes, ok := g.byLabel[label]; ok {
		return len(nodes)
	}
	return 0
}

// Nodes returns all nodes in insertion order.
func (g *KnowledgeGraph) Nodes() []*GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	result := make([]*GraphNode, 0, len(g.order))
	for _, id := range g.order {
		result = append(result, g.nodes[id])
	}
	return result
}

// IterNodes returns a channel that yields all nodes in insertion order.
func (g *KnowledgeGraph) IterNodes() <-chan *GraphNode {
	g.mu.RLock()
	ch := make(chan *GraphNode, len(g.nodes))
	for _, id := range g.order {
		ch <- g.nodes[id]
	}
	close(ch)
	g.mu.RUnlock()
	return ch
}

// IterRelationships returns a channel that yields all relationships.
func (g *KnowledgeGraph) IterRelationships() <-chan *GraphRelationship {
	g.mu.RLock()
	ch := make(chan *GraphRelationship, len(g.relationships))
	for _, rel := range g.relationships {
		ch <- rel
	}
	close(ch)
	g.mu.RUnlock()
	return ch
}

// AddNode adds a node to the graph, replacing any existing node with the same ID.
// A replaced node keeps its original position in Nodes().
func (g *KnowledgeGraph) AddNode(node *GraphNode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	old, exists := g.nodes[node.ID]
	if exists && old.Label != node.Label {
		delete(g.byLabel[old.Label], node.ID)
	}
	if !exists {
		g.order = append(g.order, node.ID)
	}

	g.nodes[node.ID] = node

	if g.byLabel[node.Label] == nil {
		g.byLabel[node.Label] = make(map[string]*GraphNode)
	}
	g.byLabel[node.Label][node.ID] = node
}

// GetNode returns the node with the given ID, or nil if it does not exist.
func (g *KnowledgeGraph) GetNode(nodeID string) *GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[nodeID]
}

// RemoveNode removes a node and cascade-deletes all relationships that reference it.
// Returns true if the node existed and was removed, false otherwise.
func (g *KnowledgeGraph) RemoveNode(nodeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[nodeID]
	if !ok {
		return false
	}

	delete(g.nodes, nodeID)
	delete(g.byLabel[node.Label], nodeID)
	g.dropFromOrder(map[string]bool{nodeID: true})

	g.cascadeRelationshipsForNode(nodeID)
	return true
}

// RemoveNodesByLabel removes every node with the given label and cascade-deletes
// their relationships. Returns the number of nodes removed.
func (g *KnowledgeGraph) RemoveNodesByLabel(label NodeLabel) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes := g.byLabel[label]
	if len(nodes) == 0 {
		return 0
	}

	removed := make(map[string]bool, len(nodes))
	for id := range nodes {
		delete(g.nodes, id)
		removed[id] = true
	}
	delete(g.byLabel, label)
	g.dropFromOrder(removed)

	for id := range removed {
		g.cascadeRelationshipsForNode(id)
	}

	return len(removed)
}

// AddRelationship adds a relationship to the graph, replacing any existing relationship with the same ID.
func (g *KnowledgeGraph) AddRelationship(rel *GraphRelationship) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.relationships[rel.ID]; ok {
		delete(g.byRelType[old.Type], rel.ID)
		delete(g.outgoing[old.Source], rel.ID)
		delete(g.incoming[old.Target], rel.ID)
	}

	g.relationships[rel.ID] = rel

	if g.byRelType[rel.Type] == nil {
		g.byRelType[rel.Type] = make(map[string]*GraphRelationship)
	}
	g.byRelType[rel.Type][rel.ID] = rel

	if g.outgoing[rel.Source] == nil {
		g.outgoing[rel.Source] = make(map[string]*GraphRelationship)
	}
	g.outgoing[rel.Source][rel.ID] = rel

	if g.incoming[rel.Target] == nil {
		g.incoming[rel.Target] = make(map[string]*GraphRelationship)
	}
	g.incoming[rel.Target][rel.ID] = rel
}

// GetNodesByLabel returns all nodes with the given label in insertion order.
func (g *KnowledgeGraph) GetNodesByLabel(label NodeLabel) []*GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes, ok := g.byLabel[label]
	if !ok {
		return nil
	}

	result := make([]*GraphNode, 0, len(nodes))
	for _, id := range g.order {
		if node, ok := nodes[id]; ok {
			result = append(result, node)
		}
	}
	return result
}

// GetRelationshipsByType returns all relationships with the given type.
func (g *KnowledgeGraph) GetRelationshipsByType(relType RelType) []*GraphRelationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rels, ok := g.byRelType[relType]
	if !ok {
		return nil
	}

	result := make([]*GraphRelationship, 0, len(rels))
	for _, rel := range rels {
		result = append(result, rel)
	}
	return result
}

// GetOutgoing returns relationships originating from the given node ID.
// If relType is provided, only relationships of that type are returned.
func (g *KnowledgeGraph) GetOutgoing(nodeID string, relType ...RelType) []*GraphRelationship {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return filterRels(g.outgoing[nodeID], relType...)
}

// Neighbors returns the nodes adjacent to nodeID in either direction, sorted
// by ID. If relType is provided, only relationships of that type are followed.
func (g *KnowledgeGraph) Neighbors(nodeID string, relType ...RelType) []*GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	var result []*GraphNode
	collect := func(id string) {
		if seen[id] {
			return
		}
		if node, ok := g.nodes[id]; ok {
			seen[id] = true
			result = append(result, node)
		}
	}
	for _, rel := range filterRels(g.outgoing[nodeID], relType...) {
		collect(rel.Target)
	}
	for _, rel := range filterRels(g.incoming[nodeID], relType...) {
		collect(rel.Source)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// FindByName returns the first node whose Name matches, or nil.
func (g *KnowledgeGraph) FindByName(name string) *GraphNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.order {
		if node := g.nodes[id]; node.Name == name {
			return node
		}
	}
	return nil
}

// Stats returns a summary of graph size.
func (g *KnowledgeGraph) Stats() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return map[string]int{
		"nodes":         len(g.nodes),
		"relationships": len(g.relationships),
	}
}

func filterRels(rels map[string]*GraphRelationship, relType ...RelType) []*GraphRelationship {
	if len(rels) == 0 {
		return nil
	}

	result := make([]*GraphRelationship, 0, len(rels))
	for _, rel := range rels {
		if len(relType) > 0 && relType[0] != "" && rel.Type != relType[0] {
			continue
		}
		result = append(result, rel)
	}
	return result
}

// dropFromOrder removes the given IDs from the insertion order.
// Must be called with the write lock held.
func (g *KnowledgeGraph) dropFromOrder(ids map[string]bool) {
	kept := g.order[:0]
	for _, id := range g.order {
		if !ids[id] {
			kept = append(kept, id)
		}
	}
	g.order = kept
}

// cascadeRelationshipsForNode removes all relationships where the node is source or target.
// Must be called with the write lock held.
func (g *KnowledgeGraph) cascadeRelationshipsForNode(nodeID string) {
	if outRels, ok := g.outgoing[nodeID]; ok {
		for _, rel := range outRels {
			delete(g.relationships, rel.ID)
			delete(g.byRelType[rel.Type], rel.ID)
			delete(g.incoming[rel.Target], rel.ID)
		}
		delete(g.outgoing, nodeID)
	}

	if inRels, ok := g.incoming[nodeID]; ok {
		for _, rel := range inRels {
			delete(g.relationships, rel.ID)
			delete(g.byRelType[rel.Type], rel.ID)
			delete(g.outgoing[rel.Source], rel.ID)
		}
		delete(g.incoming, nodeID)
	}
}
