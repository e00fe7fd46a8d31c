package layout

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/Benny93/ontolink-go/internal/graph"
)

// Clusters groups concepts with a Louvain-style local moving pass
// over their parent links. It adds one community node per group with
// member_of edges and returns the cluster number of every concept, numbered
// consecutively in concept order. Concepts without links form singleton
// clusters.
func Clusters(g *graph.KnowledgeGraph, seed uint64) map[string]int {
	g.RemoveNodesByLabel(graph.NodeCommunity)

	concepts := g.GetNodesByLabel(graph.NodeConcept)
	if len(concepts) == 0 {
		return map[string]int{}
	}

	adj, indexNode := buildAdjacency(g, concepts)
	communities := assignCommunities(adj, rand.New(rand.NewPCG(seed, seed+7)))

	clusters := make(map[string]int, len(indexNode))
	members := make(map[int][]string)
	for i, nodeID := range indexNode {
		clusters[nodeID] = communities[i]
		members[communities[i]] = append(members[communities[i]], nodeID)
	}

	for commID := 0; commID < len(members); commID++ {
		ids := members[commID]
		communityID := graph.GenerateID(graph.NodeCommunity, fmt.Sprint(commID))
		g.AddNode(&graph.GraphNode{
			ID:    communityID,
			Label: graph.NodeCommunity,
			Name:  communityLabel(g, ids),
			Index: commID,
			Properties: map[string]any{
				"member_count": len(ids),
			},
		})
		for _, memberID := range ids {
			g.AddRelationship(&graph.GraphRelationship{
				ID:     graph.RelationshipID(graph.RelMemberOf, memberID, communityID),
				Type:   graph.RelMemberOf,
				Source: memberID,
				Target: communityID,
			})
		}
	}

	return clusters
}

// buildAdjacency builds undirected weighted neighbour maps over concepts.
func buildAdjacency(g *graph.KnowledgeGraph, concepts []*graph.GraphNode) ([]map[int]float64, []string) {
	nodeIndex := make(map[string]int, len(concepts))
	indexNode := make([]string, len(concepts))
	for i, node := range concepts {
		nodeIndex[node.ID] = i
		indexNode[i] = node.ID
	}

	adj := make([]map[int]float64, len(concepts))
	for i := range adj {
		adj[i] = make(map[int]float64)
	}
	for _, rel := range g.GetRelationshipsByType(graph.RelParentOf) {
		src, srcOk := nodeIndex[rel.Source]
		tgt, tgtOk := nodeIndex[rel.Target]
		if !srcOk || !tgtOk || src == tgt {
			continue
		}
		adj[src][tgt]++
		adj[tgt][src]++
	}
	return adj, indexNode
}

// assignCommunities moves nodes between neighbouring communities while
// modularity improves. Index i of the result is node i's community, numbered
// consecutively by first appearance.
func assignCommunities(adj []map[int]float64, rng *rand.Rand) []int {
	n := len(adj)
	communities := make([]int, n)
	for i := range communities {
		communities[i] = i
	}

	degrees := make([]float64, n)
	var twoM float64
	for i, nbrs := range adj {
		for _, w := range nbrs {
			degrees[i] += w
		}
		twoM += degrees[i]
	}
	if twoM == 0 {
		return communities
	}

	// Sum of member degrees per community.
	totals := make([]float64, n)
	copy(totals, degrees)

	const maxIterations = 100
	for iter := 0; iter < maxIterations; iter++ {
		moved := false
		for _, node := range rng.Perm(n) {
			current := communities[node]
			ki := degrees[node]

			links := make(map[int]float64)
			for j, w := range adj[node] {
				links[communities[j]] += w
			}

			totals[current] -= ki
			best, bestGain := current, links[current]-totals[current]*ki/twoM

			candidates := make([]int, 0, len(links))
			for comm := range links {
				candidates = append(candidates, comm)
			}
			sort.Ints(candidates)
			for _, comm := range candidates {
				gain := links[comm] - totals[comm]*ki/twoM
				if gain > bestGain {
					best, bestGain = comm, gain
				}
			}

			totals[best] += ki
			if best != current {
				communities[node] = best
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	renumber := make(map[int]int)
	for i, comm := range communities {
		if _, ok := renumber[comm]; !ok {
			renumber[comm] = len(renumber)
		}
		communities[i] = renumber[comm]
	}
	return communities
}

// communityLabel names a community after a few of its members.
func communityLabel(g *graph.KnowledgeGraph, members []string) string {
	var names []string
	for _, memberID := range members {
		if node := g.GetNode(memberID); node != nil {
			names = append(names, node.Name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Community (%d members)", len(members))
	}

	sort.Strings(names)
	if len(names) <= 3 {
		return fmt.Sprintf("Community (%s)", joinNames(names))
	}
	return fmt.Sprintf("Community (%s, +%d more)", joinNames(names[:3]), len(names)-3)
}

func joinNames(names []string) string {
	result := ""
	for i, name := range names {
		if i > 0 {
			result += ", "
		}
		result += name
	}
	return result
}
