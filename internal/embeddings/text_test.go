package embeddings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Benny93/ontolink-go/internal/graph"
)

func TestConceptText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		node *graph.GraphNode
		want string
	}{
		{
			name: "WithCategory",
			node: &graph.GraphNode{
				Name:       "fever@symptom",
				Text:       "Fever",
				Category:   "symptom",
				Properties: map[string]any{"display_name": "fever"},
			},
			want: "fever Fever symptom",
		},
		{
			name: "PlaceholdersDropped",
			node: &graph.GraphNode{Name: "organism", Text: graph.NA, Category: graph.NA},
			want: "organism",
		},
		{
			name: "TextEqualToName",
			node: &graph.GraphNode{Name: "virus", Text: "virus"},
			want: "virus",
		},
		{
			name: "Nil",
			node: nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ConceptText(tt.node))
		})
	}
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Snippet(nil))
	assert.Equal(t, graph.NA, Snippet(&graph.GraphNode{}))
	assert.Len(t, Snippet(&graph.GraphNode{Text: strings.Repeat("x", 300)}), 120)
}
