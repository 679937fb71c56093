package platform

import (
	"context"
	"time"

	"github.com/ganot/teamgraph/internal/domain/graph"
	"github.com/ganot/teamgraph/internal/domain/node"
)

// ContextStore ingests normalized items into the team graph.
type ContextStore interface {
	CreateNode(ctx context.Context, teamID string, req graph.CreateNodeRequest) (*node.ContextNode, bool, error)
}

// SyncStatusRepository persists per (user, platform) sync bookkeeping.
type SyncStatusRepository interface {
	Get(ctx context.Context, userID string, platform node.Platform) (*SyncStatus, error)
	Record(ctx context.Context, status *SyncStatus) error
}

// WebhookEventRepository persists inbound webhook events.
type WebhookEventRepository interface {
	Append(ctx context.Context, event *WebhookEvent) error
	Get(ctx context.Context, id string) (*WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, lastError string) error
}

// Enqueuer hands payloads to the durable job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload []byte) (string, error)
}
