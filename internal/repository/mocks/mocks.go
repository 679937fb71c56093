package mocks

import (
	"context"
	"net/http"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ganot/teamgraph/internal/domain/credential"
	"github.com/ganot/teamgraph/internal/domain/graph"
	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/domain/platform"
	"github.com/ganot/teamgraph/internal/domain/session"
)

// TeamRepository is a mock for graph.TeamRepository.
type TeamRepository struct {
	mock.Mock
}

func (m *TeamRepository) Create(ctx context.Context, team *node.Team) error {
	args := m.Called(ctx, team)
	return args.Error(0)
}

func (m *TeamRepository) Get(ctx context.Context, id string) (*node.Team, error) {
	args := m.Called(ctx, id)
	if team, ok := args.Get(0).(*node.Team); ok {
		return team, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TeamRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// NodeRepository is a mock for graph.NodeRepository.
type NodeRepository struct {
	mock.Mock
}

func (m *NodeRepository) Upsert(ctx context.Context, n *node.ContextNode) (bool, error) {
	args := m.Called(ctx, n)
	return args.Bool(0), args.Error(1)
}

func (m *NodeRepository) Get(ctx context.Context, teamID, id string) (*node.ContextNode, error) {
	args := m.Called(ctx, teamID, id)
	if n, ok := args.Get(0).(*node.ContextNode); ok {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *NodeRepository) GetByExternalID(ctx context.Context, p node.Platform, externalID string) (*node.ContextNode, error) {
	args := m.Called(ctx, p, externalID)
	if n, ok := args.Get(0).(*node.ContextNode); ok {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *NodeRepository) GetMany(ctx context.Context, teamID string, ids []string) ([]node.ContextNode, error) {
	args := m.Called(ctx, teamID, ids)
	if nodes, ok := args.Get(0).([]node.ContextNode); ok {
		return nodes, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *NodeRepository) Recent(ctx context.Context, teamID string, limit int) ([]node.ContextNode, error) {
	args := m.Called(ctx, teamID, limit)
	if nodes, ok := args.Get(0).([]node.ContextNode); ok {
		return nodes, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *NodeRepository) AddRelationship(ctx context.Context, rel *node.Relationship) error {
	args := m.Called(ctx, rel)
	return args.Error(0)
}

func (m *NodeRepository) RelationshipsFor(ctx context.Context, teamID string, nodeIDs []string) ([]node.Relationship, error) {
	args := m.Called(ctx, teamID, nodeIDs)
	if rels, ok := args.Get(0).([]node.Relationship); ok {
		return rels, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *NodeRepository) Metrics(ctx context.Context, teamID string) (*node.Metrics, error) {
	args := m.Called(ctx, teamID)
	if metrics, ok := args.Get(0).(*node.Metrics); ok {
		return metrics, args.Error(1)
	}
	return nil, args.Error(1)
}

// SearchRepository is a mock for graph.SearchRepository.
type SearchRepository struct {
	mock.Mock
}

func (m *SearchRepository) Search(ctx context.Context, teamID string, req node.SearchRequest) ([]node.SearchResult, error) {
	args := m.Called(ctx, teamID, req)
	if results, ok := args.Get(0).([]node.SearchResult); ok {
		return results, args.Error(1)
	}
	return nil, args.Error(1)
}

// CredentialRepository is a mock for credential.Repository.
type CredentialRepository struct {
	mock.Mock
}

func (m *CredentialRepository) Put(ctx context.Context, cred *credential.Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *CredentialRepository) Update(ctx context.Context, cred *credential.Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *CredentialRepository) GetActive(ctx context.Context, userID string, p node.Platform) (*credential.Credential, error) {
	args := m.Called(ctx, userID, p)
	if cred, ok := args.Get(0).(*credential.Credential); ok {
		return cred, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CredentialRepository) DeactivateAndScrub(ctx context.Context, userID string, p node.Platform) error {
	args := m.Called(ctx, userID, p)
	return args.Error(0)
}

func (m *CredentialRepository) ListActiveForUser(ctx context.Context, userID string) ([]credential.Credential, error) {
	args := m.Called(ctx, userID)
	if creds, ok := args.Get(0).([]credential.Credential); ok {
		return creds, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CredentialRepository) ListActive(ctx context.Context) ([]credential.Credential, error) {
	args := m.Called(ctx)
	if creds, ok := args.Get(0).([]credential.Credential); ok {
		return creds, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *CredentialRepository) FindActiveByAccount(ctx context.Context, p node.Platform, accountID string) ([]credential.Credential, error) {
	args := m.Called(ctx, p, accountID)
	if creds, ok := args.Get(0).([]credential.Credential); ok {
		return creds, args.Error(1)
	}
	return nil, args.Error(1)
}

// ContextStore is a mock for platform.ContextStore.
type ContextStore struct {
	mock.Mock
}

func (m *ContextStore) CreateNode(ctx context.Context, teamID string, req graph.CreateNodeRequest) (*node.ContextNode, bool, error) {
	args := m.Called(ctx, teamID, req)
	if n, ok := args.Get(0).(*node.ContextNode); ok {
		return n, args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

// SyncStatusRepository is a mock for platform.SyncStatusRepository.
type SyncStatusRepository struct {
	mock.Mock
}

func (m *SyncStatusRepository) Get(ctx context.Context, userID string, p node.Platform) (*platform.SyncStatus, error) {
	args := m.Called(ctx, userID, p)
	if status, ok := args.Get(0).(*platform.SyncStatus); ok {
		return status, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SyncStatusRepository) Record(ctx context.Context, status *platform.SyncStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

// WebhookEventRepository is a mock for platform.WebhookEventRepository.
type WebhookEventRepository struct {
	mock.Mock
}

func (m *WebhookEventRepository) Append(ctx context.Context, event *platform.WebhookEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *WebhookEventRepository) Get(ctx context.Context, id string) (*platform.WebhookEvent, error) {
	args := m.Called(ctx, id)
	if event, ok := args.Get(0).(*platform.WebhookEvent); ok {
		return event, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *WebhookEventRepository) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *WebhookEventRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	args := m.Called(ctx, id, lastError)
	return args.Error(0)
}

// Enqueuer is a mock for platform.Enqueuer.
type Enqueuer struct {
	mock.Mock
}

func (m *Enqueuer) Enqueue(ctx context.Context, kind string, payload []byte) (string, error) {
	args := m.Called(ctx, kind, payload)
	return args.String(0), args.Error(1)
}

// SessionRepository is a mock for session.Repository.
type SessionRepository struct {
	mock.Mock
}

func (m *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *SessionRepository) GetByConnection(ctx context.Context, connectionID string) (*session.Session, error) {
	args := m.Called(ctx, connectionID)
	if s, ok := args.Get(0).(*session.Session); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *SessionRepository) Update(ctx context.Context, s *session.Session) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *SessionRepository) Delete(ctx context.Context, connectionID string) error {
	args := m.Called(ctx, connectionID)
	return args.Error(0)
}

func (m *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if ids, ok := args.Get(0).([]string); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

// Adapter is a mock for platform.Adapter.
type Adapter struct {
	mock.Mock
	AdapterPlatform node.Platform
}

func (m *Adapter) Platform() node.Platform {
	return m.AdapterPlatform
}

func (m *Adapter) AuthorizeURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *Adapter) ExchangeCode(ctx context.Context, code string) (*credential.Grant, error) {
	args := m.Called(ctx, code)
	if grant, ok := args.Get(0).(*credential.Grant); ok {
		return grant, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Adapter) Refresh(ctx context.Context, refreshToken string) (*credential.Grant, error) {
	args := m.Called(ctx, refreshToken)
	if grant, ok := args.Get(0).(*credential.Grant); ok {
		return grant, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Adapter) Pull(ctx context.Context, accessToken string, q platform.PullQuery) (*platform.PullResult, error) {
	args := m.Called(ctx, accessToken, q)
	if result, ok := args.Get(0).(*platform.PullResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Adapter) VerifyWebhook(headers http.Header, body []byte) error {
	args := m.Called(headers, body)
	return args.Error(0)
}

func (m *Adapter) ParseWebhook(body []byte) ([]platform.Event, error) {
	args := m.Called(body)
	if events, ok := args.Get(0).([]platform.Event); ok {
		return events, args.Error(1)
	}
	return nil, args.Error(1)
}
