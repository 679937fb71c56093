package graph

import (
	"context"
	"fmt"

	"github.com/ganot/teamgraph/internal/domain/node"
)

// Depth selects how far TeamGraph expands from its root nodes.
type Depth string

const (
	DepthShallow Depth = "shallow"
	DepthDeep    Depth = "deep"
)

const (
	shallowHops = 1
	deepHops    = 3

	// rootLimit bounds how many recently-updated nodes seed the traversal.
	rootLimit = 20
)

// TeamGraph expands the team's graph from its most recently updated
// nodes. Traversal is breadth-first over relationships, never revisits a
// node, and never crosses the team boundary, so relationship cycles
// terminate and concurrent ingestion can at worst add nodes the
// traversal doesn't see.
func (s *Service) TeamGraph(ctx context.Context, teamID string, depth Depth) (*node.Graph, error) {
	if teamID == "" {
		return nil, ErrInvalidInput
	}

	hops := shallowHops
	if depth == DepthDeep {
		hops = deepHops
	}

	roots, err := s.nodes.Recent(ctx, teamID, rootLimit)
	if err != nil {
		return nil, fmt.Errorf("loading root nodes: %w", err)
	}

	visited := make(map[string]bool, len(roots))
	nodes := make([]node.ContextNode, 0, len(roots))
	frontier := make([]string, 0, len(roots))
	for _, root := range roots {
		visited[root.ID] = true
		nodes = append(nodes, root)
		frontier = append(frontier, root.ID)
	}

	seenEdges := make(map[string]bool)
	var edges []node.Relationship

	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		rels, err := s.nodes.RelationshipsFor(ctx, teamID, frontier)
		if err != nil {
			return nil, fmt.Errorf("loading relationships: %w", err)
		}

		var next []string
		for _, rel := range rels {
			if !seenEdges[rel.ID] {
				seenEdges[rel.ID] = true
				edges = append(edges, rel)
			}
			for _, endpoint := range []string{rel.SourceID, rel.TargetID} {
				if !visited[endpoint] {
					visited[endpoint] = true
					next = append(next, endpoint)
				}
			}
		}

		if len(next) == 0 {
			break
		}

		// GetMany is team-restricted, so an edge endpoint outside the
		// team (which shouldn't exist) is dropped rather than expanded.
		fetched, err := s.nodes.GetMany(ctx, teamID, next)
		if err != nil {
			return nil, fmt.Errorf("loading neighbor nodes: %w", err)
		}
		frontier = frontier[:0]
		for _, n := range fetched {
			nodes = append(nodes, n)
			frontier = append(frontier, n.ID)
		}
	}

	return &node.Graph{
		TeamID: teamID,
		Nodes:  nodes,
		Edges:  edges,
		Stats:  graphStats(len(nodes), len(edges)),
	}, nil
}

// graphStats computes density as edges over the maximum possible number
// of directed edges.
func graphStats(nodeCount, edgeCount int) node.GraphStats {
	stats := node.GraphStats{NodeCount: nodeCount, EdgeCount: edgeCount}
	if nodeCount > 1 {
		stats.Density = float64(edgeCount) / float64(nodeCount*(nodeCount-1))
	}
	return stats
}
