package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ganot/teamgraph/internal/domain/credential"
	"github.com/ganot/teamgraph/internal/domain/graph"
	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/jobs"
	"github.com/ganot/teamgraph/internal/repository"
	"github.com/google/uuid"
)

const defaultPullLimit = 100

// Manager orchestrates platform adapters, the credential vault, the
// context store, and the job queue.
type Manager struct {
	adapters map[node.Platform]Adapter
	creds    *credential.Service
	store    ContextStore
	status   SyncStatusRepository
	events   WebhookEventRepository
	queue    Enqueuer
	logger   *slog.Logger
}

// NewManager creates a platform manager over a fixed adapter set.
func NewManager(
	adapters []Adapter,
	creds *credential.Service,
	store ContextStore,
	status SyncStatusRepository,
	events WebhookEventRepository,
	queue Enqueuer,
	logger *slog.Logger,
) *Manager {
	byPlatform := make(map[node.Platform]Adapter, len(adapters))
	for _, adapter := range adapters {
		byPlatform[adapter.Platform()] = adapter
	}
	return &Manager{
		adapters: byPlatform,
		creds:    creds,
		store:    store,
		status:   status,
		events:   events,
		queue:    queue,
		logger:   logger,
	}
}

// Adapter returns the variant for a platform.
func (m *Manager) Adapter(platform node.Platform) (Adapter, error) {
	adapter, ok := m.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	return adapter, nil
}

// AuthorizeURL builds the OAuth authorization URL for a platform.
func (m *Manager) AuthorizeURL(platform node.Platform, state string) (string, error) {
	adapter, err := m.Adapter(platform)
	if err != nil {
		return "", err
	}
	return adapter.AuthorizeURL(state), nil
}

// CompleteOAuth exchanges an authorization code and stores the sealed
// credential as the user's active one for the platform.
func (m *Manager) CompleteOAuth(ctx context.Context, userID, teamID string, platform node.Platform, code string) (*credential.Credential, error) {
	adapter, err := m.Adapter(platform)
	if err != nil {
		return nil, err
	}

	grant, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	return m.creds.Store(ctx, userID, teamID, platform, grant)
}

// SyncPlatform runs one sync pass for (userID, platform). An expired
// credential is refreshed synchronously first; refresh failure aborts
// with ErrAuthExpired. Per-item failures are collected, never fatal:
// the pass ends partial, and only an error-free pass advances the
// watermark.
func (m *Manager) SyncPlatform(ctx context.Context, userID string, platform node.Platform, full bool) (*SyncStatus, error) {
	adapter, err := m.Adapter(platform)
	if err != nil {
		return nil, err
	}

	cred, grant, err := m.creds.ActiveGrant(ctx, userID, platform)
	if err != nil {
		return nil, err
	}

	if cred.Expired(time.Now()) {
		grant, err = m.refresh(ctx, adapter, cred, grant)
		if err != nil {
			return nil, err
		}
	}

	prev, err := m.status.Get(ctx, userID, platform)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("loading sync status: %w", err)
	}

	var watermark *time.Time
	if !full && prev != nil {
		watermark = prev.Watermark
	}

	syncStart := time.Now()
	result, err := adapter.Pull(ctx, grant.AccessToken, PullQuery{
		Since: watermark,
		Limit: defaultPullLimit,
	})
	if err != nil {
		status := m.newStatus(userID, platform, prev, SyncFailed, syncStart)
		status.Errors = []string{err.Error()}
		if recordErr := m.status.Record(ctx, status); recordErr != nil {
			m.logger.Error("recording failed sync status", "user", userID, "platform", platform, "error", recordErr)
		}
		return status, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	itemErrors := make([]string, 0, len(result.Errors))
	for _, itemErr := range result.Errors {
		itemErrors = append(itemErrors, fmt.Sprintf("%s: %s", itemErr.ExternalID, itemErr.Message))
	}

	synced := 0
	for _, item := range result.Items {
		if _, _, err := m.ingest(ctx, cred.TeamID, platform, item); err != nil {
			itemErrors = append(itemErrors, fmt.Sprintf("%s: %v", item.ExternalID, err))
			continue
		}
		synced++
	}

	state := SyncCompleted
	if len(itemErrors) > 0 {
		state = SyncPartial
	}

	status := m.newStatus(userID, platform, prev, state, syncStart)
	status.ItemsSynced = synced
	if len(itemErrors) > maxRecordedErrors {
		itemErrors = itemErrors[:maxRecordedErrors]
	}
	status.Errors = itemErrors
	if state == SyncCompleted {
		status.Watermark = &syncStart
	}

	if err := m.status.Record(ctx, status); err != nil {
		return nil, fmt.Errorf("recording sync status: %w", err)
	}

	m.logger.Info("sync finished", "user", userID, "platform", platform,
		"status", state, "items", synced, "errors", len(itemErrors))
	return status, nil
}

// HandleWebhook verifies an inbound call, attributes each parsed event
// to a team, persists it, and enqueues processing. The call never
// blocks on downstream work; it returns the number of accepted events.
func (m *Manager) HandleWebhook(ctx context.Context, platform node.Platform, headers http.Header, body []byte) (int, error) {
	adapter, err := m.Adapter(platform)
	if err != nil {
		return 0, err
	}

	if err := adapter.VerifyWebhook(headers, body); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	parsed, err := adapter.ParseWebhook(body)
	if err != nil {
		return 0, fmt.Errorf("parsing webhook: %w", err)
	}

	accepted := 0
	for _, event := range parsed {
		teamID, err := m.attributeTeam(ctx, platform, event.AccountID)
		if err != nil {
			m.logger.Warn("dropping webhook event", "platform", platform,
				"account", event.AccountID, "error", err)
			continue
		}

		payload, err := json.Marshal(event)
		if err != nil {
			m.logger.Error("encoding webhook event", "platform", platform, "error", err)
			continue
		}

		stored := &WebhookEvent{
			ID:        uuid.NewString(),
			Platform:  platform,
			EventType: event.Type,
			TeamID:    teamID,
			Payload:   payload,
			Status:    EventPending,
			CreatedAt: time.Now(),
		}
		if err := m.events.Append(ctx, stored); err != nil {
			return accepted, fmt.Errorf("persisting webhook event: %w", err)
		}

		jobPayload, err := json.Marshal(WebhookJob{EventID: stored.ID})
		if err != nil {
			return accepted, fmt.Errorf("encoding webhook job: %w", err)
		}
		if _, err := m.queue.Enqueue(ctx, jobs.KindWebhook, jobPayload); err != nil {
			return accepted, fmt.Errorf("enqueueing webhook job: %w", err)
		}
		accepted++
	}

	return accepted, nil
}

// DisconnectPlatform deactivates and scrubs the user's credential.
// Nodes already ingested stay in the graph.
func (m *Manager) DisconnectPlatform(ctx context.Context, userID string, platform node.Platform) error {
	return m.creds.Deactivate(ctx, userID, platform)
}

// ListConnections returns the user's active platform connections with
// their latest sync status.
func (m *Manager) ListConnections(ctx context.Context, userID string) ([]Connection, error) {
	creds, err := m.creds.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}

	connections := make([]Connection, 0, len(creds))
	for _, cred := range creds {
		conn := Connection{
			Platform:  cred.Platform,
			TeamID:    cred.TeamID,
			AccountID: cred.AccountID,
			Scopes:    cred.Scopes,
			ExpiresAt: cred.ExpiresAt,
		}
		status, err := m.status.Get(ctx, userID, cred.Platform)
		if err == nil {
			conn.Status = status
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("loading sync status: %w", err)
		}
		connections = append(connections, conn)
	}
	return connections, nil
}

// SyncJob is the payload for sync tasks.
type SyncJob struct {
	UserID   string        `json:"user_id"`
	Platform node.Platform `json:"platform"`
	Full     bool          `json:"full,omitempty"`
}

// WebhookJob is the payload for webhook processing tasks.
type WebhookJob struct {
	EventID string `json:"event_id"`
}

// EnqueueSync schedules an asynchronous sync pass.
func (m *Manager) EnqueueSync(ctx context.Context, userID string, platform node.Platform, full bool) error {
	payload, err := json.Marshal(SyncJob{UserID: userID, Platform: platform, Full: full})
	if err != nil {
		return fmt.Errorf("encoding sync job: %w", err)
	}
	if _, err := m.queue.Enqueue(ctx, jobs.KindSync, payload); err != nil {
		return fmt.Errorf("enqueueing sync job: %w", err)
	}
	return nil
}

// HandleSyncJob is the queue handler for sync tasks. An expired
// credential is not retryable; everything else is left to the retry
// policy.
func (m *Manager) HandleSyncJob(ctx context.Context, payload []byte) error {
	var job SyncJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("decoding sync job: %w", err)
	}

	_, err := m.SyncPlatform(ctx, job.UserID, job.Platform, job.Full)
	if errors.Is(err, ErrAuthExpired) || errors.Is(err, credential.ErrNoCredential) {
		m.logger.Warn("sync requires user action, not retrying",
			"user", job.UserID, "platform", job.Platform, "error", err)
		return nil
	}
	return err
}

// HandleWebhookJob is the queue handler for webhook tasks: it ingests
// the stored event's item into the owning team's graph.
func (m *Manager) HandleWebhookJob(ctx context.Context, payload []byte) error {
	var job WebhookJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("decoding webhook job: %w", err)
	}

	stored, err := m.events.Get(ctx, job.EventID)
	if err != nil {
		return fmt.Errorf("loading webhook event: %w", err)
	}
	if stored.Status == EventProcessed {
		return nil
	}

	var event Event
	if err := json.Unmarshal(stored.Payload, &event); err != nil {
		// Undecodable payloads can never succeed; mark and stop.
		if markErr := m.events.MarkFailed(ctx, stored.ID, err.Error()); markErr != nil {
			m.logger.Error("marking webhook event failed", "event", stored.ID, "error", markErr)
		}
		return nil
	}

	if event.Item != nil {
		if _, _, err := m.ingest(ctx, stored.TeamID, stored.Platform, *event.Item); err != nil {
			if markErr := m.events.MarkFailed(ctx, stored.ID, err.Error()); markErr != nil {
				m.logger.Error("marking webhook event failed", "event", stored.ID, "error", markErr)
			}
			return fmt.Errorf("ingesting webhook item: %w", err)
		}
	}

	if err := m.events.MarkProcessed(ctx, stored.ID, time.Now()); err != nil {
		return fmt.Errorf("marking webhook event processed: %w", err)
	}
	return nil
}

func (m *Manager) ingest(ctx context.Context, teamID string, platform node.Platform, item Item) (*node.ContextNode, bool, error) {
	related := make([]graph.RelatedNode, 0, len(item.Related))
	for _, ref := range item.Related {
		related = append(related, graph.RelatedNode{
			ExternalID: ref.ExternalID,
			Relation:   ref.Relation,
		})
	}
	return m.store.CreateNode(ctx, teamID, graph.CreateNodeRequest{
		Platform:   platform,
		ExternalID: item.ExternalID,
		Type:       item.Type,
		Title:      item.Title,
		Content:    item.Content,
		URL:        item.URL,
		Author:     item.Author,
		Related:    related,
	})
}

func (m *Manager) refresh(ctx context.Context, adapter Adapter, cred *credential.Credential, grant *credential.Grant) (*credential.Grant, error) {
	if grant.RefreshToken == "" {
		return nil, ErrAuthExpired
	}
	refreshed, err := adapter.Refresh(ctx, grant.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}
	if err := m.creds.Rotate(ctx, cred, refreshed); err != nil {
		return nil, fmt.Errorf("rotating credential: %w", err)
	}
	return refreshed, nil
}

// attributeTeam maps an external account to a connected team. When
// several teams have connected the same account the earliest credential
// wins; the ambiguity is logged because the choice is arbitrary.
func (m *Manager) attributeTeam(ctx context.Context, platform node.Platform, accountID string) (string, error) {
	creds, err := m.creds.FindByAccount(ctx, platform, accountID)
	if err != nil {
		return "", fmt.Errorf("looking up account: %w", err)
	}
	if len(creds) == 0 {
		return "", ErrUnknownTeam
	}
	if len(creds) > 1 {
		m.logger.Warn("multiple teams connected to account, attributing to earliest",
			"platform", platform, "account", accountID, "candidates", len(creds))
	}
	return creds[0].TeamID, nil
}

func (m *Manager) newStatus(userID string, platform node.Platform, prev *SyncStatus, state SyncState, syncAt time.Time) *SyncStatus {
	status := &SyncStatus{
		UserID:     userID,
		Platform:   platform,
		Status:     state,
		LastSyncAt: &syncAt,
		UpdatedAt:  time.Now(),
	}
	if prev != nil {
		status.Watermark = prev.Watermark
	}
	return status
}
