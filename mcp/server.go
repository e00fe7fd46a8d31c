// Package mcp serves a stored ontology over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/ontolink-go/internal/graph"
	"github.com/Benny93/ontolink-go/internal/network"
	"github.com/Benny93/ontolink-go/internal/storage"
)

// Tool and resource names.
const (
	ToolSearch  = "ontolink_search"
	ToolSimilar = "ontolink_similar"
	ToolConcept = "ontolink_concept"
	ToolCluster = "ontolink_cluster"

	ResourceOverview = "ontolink://overview"
	ResourceSchema   = "ontolink://schema"
)

const defaultLimit = 10

// Server represents the MCP server.
type Server struct {
	storage StorageBackend
	server  *mcp.Server
}

// StorageBackend is the part of storage.StorageBackend the server reads.
type StorageBackend interface {
	FindByName(ctx context.Context, name string) (*graph.GraphNode, error)
	GetNode(ctx context.Context, nodeID string) (*graph.GraphNode, error)
	GetNodesByLabel(ctx context.Context, label string) []*graph.GraphNode
	Neighbors(ctx context.Context, nodeID string, relTypes ...graph.RelType) ([]*graph.GraphNode, error)
	GetEmbedding(ctx context.Context, nodeID string) ([]float64, error)
	VectorSearch(ctx context.Context, vector []float64, limit int) ([]storage.SearchResult, error)
	HybridSearch(ctx context.Context, query string, queryVector []float64, limit int) ([]storage.HybridSearchResult, error)
	LoadNetwork(ctx context.Context) (*network.Network, error)
	NodeCount() int
	RelationshipCount() int
}

// Tool represents an MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a new MCP server over store.
func NewServer(store StorageBackend, version string) *Server {
	s := &Server{storage: store}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "ontolink-go",
		Version: version,
	}, nil)

	s.registerTools()
	s.registerResources()
	return s
}

// Run serves MCP over stdin and stdout until the client disconnects or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves MCP over transport.
func (s *Server) RunTransport(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        ToolSearch,
			Description: "Search ontology concepts by name and preferred label. Text matches and vector neighbours of an exactly named concept are fused by reciprocal rank.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Search text or a concept name"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        ToolSimilar,
			Description: "List the concepts whose learned node vectors are closest to the named concept.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name":  {Type: "string", Description: "Concept name as it appears in the ontology export"},
					"limit": {Type: "integer", Description: "Maximum number of neighbours"},
				},
				Required: []string{"name"},
			},
		},
		{
			Name:        ToolConcept,
			Description: "Show a concept: its preferred label, category, linked concepts and cluster.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"name": {Type: "string", Description: "Concept name as it appears in the ontology export"},
				},
				Required: []string{"name"},
			},
		},
		{
			Name:        ToolCluster,
			Description: "List the members of a concept cluster.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"id":    {Type: "integer", Description: "Cluster number, as shown by ontolink_concept"},
					"limit": {Type: "integer", Description: "Maximum number of members"},
				},
				Required: []string{"id"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         ResourceOverview,
			Name:        "Ontology Overview",
			Description: "Counts of stored concepts, links, clusters and network nodes",
			MimeType:    "text/markdown",
		},
		{
			URI:         ResourceSchema,
			Name:        "Graph Schema",
			Description: "Node labels and relationship types of the stored ontology graph",
			MimeType:    "text/markdown",
		},
	}
}

// CallTool executes a tool with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolSearch:
		query, _ := args["query"].(string)
		return s.handleSearch(ctx, query, intArg(args, "limit", defaultLimit))
	case ToolSimilar:
		concept, _ := args["name"].(string)
		return s.handleSimilar(ctx, concept, intArg(args, "limit", defaultLimit))
	case ToolConcept:
		concept, _ := args["name"].(string)
		return s.handleConcept(ctx, concept)
	case ToolCluster:
		return s.handleCluster(ctx, intArg(args, "id", -1), intArg(args, "limit", defaultLimit))
	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case ResourceOverview:
		return s.overview(ctx)
	case ResourceSchema:
		return schema(), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

func (s *Server) registerTools() {
	for _, tool := range s.ListTools() {
		name := tool.Name
		s.server.AddTool(&mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args map[string]any
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
					return nil, fmt.Errorf("decoding arguments: %w", err)
				}
			}

			text, err := s.CallTool(ctx, name, args)
			if err != nil {
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				}, nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: text}},
			}, nil
		})
	}
}

func (s *Server) registerResources() {
	for _, res := range s.ListResources() {
		mimeType := res.MimeType
		s.server.AddResource(&mcp.Resource{
			URI:         res.URI,
			Name:        res.Name,
			Description: res.Description,
			MIMEType:    res.MimeType,
		}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			text, err := s.ReadResource(ctx, req.Params.URI)
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{URI: req.Params.URI, MIMEType: mimeType, Text: text},
				},
			}, nil
		})
	}
}

// intArg reads a numeric argument. JSON numbers decode as float64.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

// Tool Handlers

func (s *Server) handleSearch(ctx context.Context, query string, limit int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "No query provided", nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	// An exact concept name contributes its vector neighbours.
	var vector []float64
	if node, err := s.storage.FindByName(ctx, query); err == nil && node != nil {
		vector, _ = s.storage.GetEmbedding(ctx, node.ID)
	}

	results, err := s.storage.HybridSearch(ctx, query, vector, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for '%s':\n\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. **%s** (%s)\n", i+1, r.NodeName, r.Category)
		fmt.Fprintf(&sb, "   Score: %.4f\n", r.Score)
		if r.Snippet != "" && r.Snippet != graph.NA {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Next: Use `%s` on a concept for its links and cluster.", ToolConcept)
	return sb.String(), nil
}

func (s *Server) handleSimilar(ctx context.Context, name string, limit int) (string, error) {
	if name == "" {
		return "No concept name provided", nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	node, err := s.storage.FindByName(ctx, name)
	if err != nil {
		return "", err
	}
	if node == nil {
		return fmt.Sprintf("Concept '%s' not found", name), nil
	}
	vector, err := s.storage.GetEmbedding(ctx, node.ID)
	if err != nil {
		return "", err
	}
	if vector == nil {
		return fmt.Sprintf("Concept '%s' has no learned vector", name), nil
	}

	// The concept itself is always its own best match.
	results, err := s.storage.VectorSearch(ctx, vector, limit+1)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Concepts most similar to **%s**:\n\n", name)
	n := 0
	for _, r := range results {
		if r.NodeID == node.ID || n == limit {
			continue
		}
		n++
		fmt.Fprintf(&sb, "%d. %s (%s) %.4f\n", n, r.NodeName, r.Category, r.Score)
	}
	if n == 0 {
		sb.WriteString("No similar concepts found.\n")
	}
	return sb.String(), nil
}

func (s *Server) handleConcept(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "No concept name provided", nil
	}

	node, err := s.storage.FindByName(ctx, name)
	if err != nil {
		return "", err
	}
	if node == nil {
		return fmt.Sprintf("Concept '%s' not found", name), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", node.Name)
	fmt.Fprintf(&sb, "**Label:** %s\n", node.Text)
	fmt.Fprintf(&sb, "**Category:** %s\n", node.Category)
	if node.Index >= 0 {
		fmt.Fprintf(&sb, "**Index:** %d\n", node.Index)
	}

	linked, err := s.storage.Neighbors(ctx, node.ID, graph.RelParentOf)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&sb, "\n## Linked concepts (%d)\n", len(linked))
	for _, n := range linked {
		fmt.Fprintf(&sb, "- %s (%s)\n", n.Name, n.Text)
	}

	communities, err := s.storage.Neighbors(ctx, node.ID, graph.RelMemberOf)
	if err != nil {
		return "", err
	}
	for _, c := range communities {
		fmt.Fprintf(&sb, "\n**Cluster %d:** %s\n", c.Index, c.Name)
	}
	return sb.String(), nil
}

func (s *Server) handleCluster(ctx context.Context, cluster, limit int) (string, error) {
	if cluster < 0 {
		return "No cluster number provided", nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	id := graph.GenerateID(graph.NodeCommunity, fmt.Sprint(cluster))
	community, err := s.storage.GetNode(ctx, id)
	if err != nil {
		return "", err
	}
	if community == nil {
		return fmt.Sprintf("Cluster %d not found", cluster), nil
	}

	members, err := s.storage.Neighbors(ctx, id, graph.RelMemberOf)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Cluster %d: %s\n\n", cluster, community.Name)
	fmt.Fprintf(&sb, "**Members:** %d\n\n", len(members))
	for i, m := range members {
		if i == limit {
			fmt.Fprintf(&sb, "... and %d more\n", len(members)-limit)
			break
		}
		fmt.Fprintf(&sb, "- %s (%s)\n", m.Name, m.Text)
	}
	return sb.String(), nil
}

// Resource Handlers

func (s *Server) overview(ctx context.Context) (string, error) {
	var sb strings.Builder
	sb.WriteString("# Ontology Overview\n\n")
	fmt.Fprintf(&sb, "**Nodes:** %d\n", s.storage.NodeCount())
	fmt.Fprintf(&sb, "**Relationships:** %d\n", s.storage.RelationshipCount())
	fmt.Fprintf(&sb, "**Concepts:** %d\n", len(s.storage.GetNodesByLabel(ctx, string(graph.NodeConcept))))
	fmt.Fprintf(&sb, "**Clusters:** %d\n", len(s.storage.GetNodesByLabel(ctx, string(graph.NodeCommunity))))

	net, err := s.storage.LoadNetwork(ctx)
	switch {
	case errors.Is(err, storage.ErrNoNetwork):
		sb.WriteString("\nNo network stored. Run `ontolink run` to build one.\n")
	case err != nil:
		return "", err
	default:
		fmt.Fprintf(&sb, "\n## Network\n\n**Nodes:** %d\n**Edges:** %d\n", net.NumNodes(), net.NumEdges())
		if len(net.FeatureNames) > 0 {
			fmt.Fprintf(&sb, "**Features:** %s\n", strings.Join(net.FeatureNames, ", "))
		}
	}
	return sb.String(), nil
}

func schema() string {
	var sb strings.Builder
	sb.WriteString("# Ontology Graph Schema\n\n")
	sb.WriteString("## Node Labels\n\n")
	sb.WriteString("| Label | Description | Key Properties |\n")
	sb.WriteString("|-------|-------------|----------------|\n")
	sb.WriteString("| `concept` | Ontology class or parent | name, text, category, index |\n")
	sb.WriteString("| `community` | Cluster of linked concepts | index, member_count |\n")
	sb.WriteString("\n## Relationship Types\n\n")
	sb.WriteString("| Type | Source → Target |\n")
	sb.WriteString("|------|-----------------|\n")
	sb.WriteString("| `parent_of` | Concept → Parent concept |\n")
	sb.WriteString("| `member_of` | Concept → Community |\n")
	return sb.String()
}
