// Package graph provides the ontology graph data model for ontolink.
//
// It defines the node and relationship types that represent ontology
// concepts (classes and their parents) and the edges between them
// (parent links and community membership).
package graph

import "strings"

// NodeLabel represents the type of a graph node.
type NodeLabel string

const (
	NodeConcept   NodeLabel = "concept"
	NodeCommunity NodeLabel = "community"
)

// RelType represents the type of relationship between graph nodes.
type RelType string

const (
	RelParentOf RelType = "parent_of"
	RelMemberOf RelType = "member_of"
)

// NA is the placeholder text for a concept whose label is unknown.
const NA = "NA"

// SplitCategory splits "name@category" into its parts. The category ends at
// a second '@'. Names without '@' have category NA.
func SplitCategory(name string) (string, string) {
	if i := strings.Index(name, "@"); i >= 0 {
		rest := name[i+1:]
		if j := strings.Index(rest, "@"); j >= 0 {
			rest = rest[:j]
		}
		return name[:i], rest
	}
	return name, NA
}

// GraphNode represents a node in the ontology graph.
type GraphNode struct {
	// ID is the unique identifier for the node.
	// Format: {label}:{name}
	ID string

	// Label is the type of the node.
	Label NodeLabel

	// Name is the ontology identifier of the concept (e.g. a class IRI).
	Name string

	// Text is the preferred label of the concept, or NA.
	Text string

	// Index is the integer encoding of the concept, -1 when unencoded.
	Index int

	// Category is the part after '@' in names of the form name@category.
	Category string

	// Properties holds additional metadata.
	Properties map[string]any
}

// GraphRelationship represents a directed edge in the ontology graph.
type GraphRelationship struct {
	// ID is the unique identifier for the relationship.
	ID string

	// Type is the type of relationship.
	Type RelType

	// Source is the ID of the source node.
	Source string

	// Target is the ID of the target node.
	Target string

	// Properties holds additional metadata.
	Properties map[string]any
}

// GenerateID creates a deterministic node ID from label and name.
// Format: {label}:{name}
func GenerateID(label NodeLabel, name string) string {
	return string(label) + ":" + name
}

// RelationshipID creates a deterministic relationship ID.
// Format: {type}:{source}->{target}
func RelationshipID(relType RelType, source, target string) string {
	return string(relType) + ":" + source + "->" + target
}
