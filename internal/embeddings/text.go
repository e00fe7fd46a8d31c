// Package embeddings learns node vectors from random walks over the
// ontology network and renders concept text for indexing.
package embeddings

import (
	"strings"

	"github.com/Benny93/ontolink-go/internal/graph"
)

// ConceptText renders the searchable text of a concept: its display name,
// preferred label and category. NA placeholders are left out.
func ConceptText(node *graph.GraphNode) string {
	if node == nil {
		return ""
	}

	name := node.Name
	if display, ok := node.Properties["display_name"].(string); ok && display != "" {
		name = display
	}

	parts := []string{name}
	if node.Text != "" && node.Text != graph.NA && node.Text != name {
		parts = append(parts, node.Text)
	}
	if node.Category != "" && node.Category != graph.NA {
		parts = append(parts, node.Category)
	}
	return strings.Join(parts, " ")
}

// Snippet is a short one-line description used in search results.
func Snippet(node *graph.GraphNode) string {
	if node == nil {
		return ""
	}
	text := node.Text
	if text == "" {
		text = graph.NA
	}
	if len(text) > 120 {
		text = text[:120]
	}
	return text
}
