package platform

import (
	"time"

	"github.com/ganot/teamgraph/internal/domain/node"
)

// SyncState is the outcome of one sync pass.
type SyncState string

const (
	SyncPending   SyncState = "pending"
	SyncPartial   SyncState = "partial"
	SyncCompleted SyncState = "completed"
	SyncFailed    SyncState = "failed"
)

// maxRecordedErrors bounds the per-item error list kept on a SyncStatus.
const maxRecordedErrors = 10

// SyncStatus is per (user, platform) sync bookkeeping. Watermark is the
// boundary for incremental pulls and only advances when a pass finishes
// with no per-item errors.
type SyncStatus struct {
	UserID      string        `json:"user_id"`
	Platform    node.Platform `json:"platform"`
	Status      SyncState     `json:"status"`
	LastSyncAt  *time.Time    `json:"last_sync_at,omitempty"`
	NextSyncAt  *time.Time    `json:"next_sync_at,omitempty"`
	Watermark   *time.Time    `json:"watermark,omitempty"`
	ItemsSynced int           `json:"items_synced"`
	Errors      []string      `json:"errors,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// EventState is a webhook event's processing state.
type EventState string

const (
	EventPending   EventState = "pending"
	EventProcessed EventState = "processed"
	EventFailed    EventState = "failed"
)

// WebhookEvent is one verified inbound webhook call, persisted before
// being processed asynchronously.
type WebhookEvent struct {
	ID          string        `json:"id"`
	Platform    node.Platform `json:"platform"`
	EventType   string        `json:"event_type"`
	TeamID      string        `json:"team_id"`
	Payload     []byte        `json:"payload"`
	Status      EventState    `json:"status"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
}

// Connection pairs an active credential with its latest sync status for
// front-end listings.
type Connection struct {
	Platform  node.Platform `json:"platform"`
	TeamID    string        `json:"team_id"`
	AccountID string        `json:"account_id,omitempty"`
	Scopes    []string      `json:"scopes,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Status    *SyncStatus   `json:"status,omitempty"`
}
