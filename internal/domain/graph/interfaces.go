package graph

import (
	"context"

	"github.com/ganot/teamgraph/internal/domain/node"
)

// TeamRepository provides team persistence.
type TeamRepository interface {
	Create(ctx context.Context, team *node.Team) error
	Get(ctx context.Context, id string) (*node.Team, error)
	Delete(ctx context.Context, id string) error
}

// NodeRepository provides context node and relationship persistence.
type NodeRepository interface {
	Upsert(ctx context.Context, n *node.ContextNode) (bool, error)
	Get(ctx context.Context, teamID, id string) (*node.ContextNode, error)
	GetByExternalID(ctx context.Context, platform node.Platform, externalID string) (*node.ContextNode, error)
	GetMany(ctx context.Context, teamID string, ids []string) ([]node.ContextNode, error)
	Recent(ctx context.Context, teamID string, limit int) ([]node.ContextNode, error)
	AddRelationship(ctx context.Context, rel *node.Relationship) error
	RelationshipsFor(ctx context.Context, teamID string, nodeIDs []string) ([]node.Relationship, error)
	Metrics(ctx context.Context, teamID string) (*node.Metrics, error)
}

// SearchRepository performs filtered full-text search.
type SearchRepository interface {
	Search(ctx context.Context, teamID string, req node.SearchRequest) ([]node.SearchResult, error)
}
