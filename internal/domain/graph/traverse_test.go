package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ganot/teamgraph/internal/domain/graph"
	"github.com/ganot/teamgraph/internal/domain/node"
)

func TestTeamGraph_CycleTerminates(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	n1 := node.ContextNode{ID: "n1", TeamID: "t1", Title: "Issue"}
	n2 := node.ContextNode{ID: "n2", TeamID: "t1", Title: "Message"}
	e1 := node.Relationship{ID: "e1", SourceID: "n1", TargetID: "n2", Type: node.RelReferences}
	e2 := node.Relationship{ID: "e2", SourceID: "n2", TargetID: "n1", Type: node.RelRepliesTo}

	f.nodes.On("Recent", mock.Anything, "t1", mock.Anything).Return([]node.ContextNode{n1}, nil)
	// Both hops see the same cyclic edge pair.
	f.nodes.On("RelationshipsFor", mock.Anything, "t1", []string{"n1"}).
		Return([]node.Relationship{e1, e2}, nil)
	f.nodes.On("RelationshipsFor", mock.Anything, "t1", []string{"n2"}).
		Return([]node.Relationship{e1, e2}, nil)
	f.nodes.On("GetMany", mock.Anything, "t1", []string{"n2"}).
		Return([]node.ContextNode{n2}, nil)

	g, err := f.svc.TeamGraph(ctx, "t1", graph.DepthDeep)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2, "cycle must not duplicate nodes")
	require.Len(t, g.Edges, 2, "cycle must not duplicate edges")
	require.Equal(t, 2, g.Stats.NodeCount)
	require.Equal(t, 2, g.Stats.EdgeCount)
	require.InDelta(t, 1.0, g.Stats.Density, 0.001)
}

func TestTeamGraph_ShallowStopsAfterOneHop(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	n1 := node.ContextNode{ID: "n1", TeamID: "t1"}
	n2 := node.ContextNode{ID: "n2", TeamID: "t1"}
	e1 := node.Relationship{ID: "e1", SourceID: "n1", TargetID: "n2"}

	f.nodes.On("Recent", mock.Anything, "t1", mock.Anything).Return([]node.ContextNode{n1}, nil)
	f.nodes.On("RelationshipsFor", mock.Anything, "t1", []string{"n1"}).
		Return([]node.Relationship{e1}, nil).Once()
	f.nodes.On("GetMany", mock.Anything, "t1", []string{"n2"}).
		Return([]node.ContextNode{n2}, nil)

	g, err := f.svc.TeamGraph(ctx, "t1", graph.DepthShallow)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	// Only one hop was expanded.
	f.nodes.AssertNumberOfCalls(t, "RelationshipsFor", 1)
}

func TestTeamGraph_EmptyTeam(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.nodes.On("Recent", mock.Anything, "t1", mock.Anything).Return(nil, nil)

	g, err := f.svc.TeamGraph(ctx, "t1", graph.DepthDeep)
	require.NoError(t, err)
	require.Empty(t, g.Nodes)
	require.Empty(t, g.Edges)
	require.Zero(t, g.Stats.Density)
}
