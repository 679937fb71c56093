package platform_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ganot/teamgraph/internal/domain/credential"
	"github.com/ganot/teamgraph/internal/domain/graph"
	"github.com/ganot/teamgraph/internal/domain/node"
	"github.com/ganot/teamgraph/internal/domain/platform"
	"github.com/ganot/teamgraph/internal/jobs"
	"github.com/ganot/teamgraph/internal/repository"
	"github.com/ganot/teamgraph/internal/repository/mocks"
)

type managerFixture struct {
	adapter  *mocks.Adapter
	credRepo *mocks.CredentialRepository
	store    *mocks.ContextStore
	status   *mocks.SyncStatusRepository
	events   *mocks.WebhookEventRepository
	queue    *mocks.Enqueuer
	vault    *credential.Vault
	manager  *platform.Manager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	vault, err := credential.NewVault(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	f := &managerFixture{
		adapter:  &mocks.Adapter{AdapterPlatform: node.PlatformGitHub},
		credRepo: &mocks.CredentialRepository{},
		store:    &mocks.ContextStore{},
		status:   &mocks.SyncStatusRepository{},
		events:   &mocks.WebhookEventRepository{},
		queue:    &mocks.Enqueuer{},
		vault:    vault,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	creds := credential.NewService(f.credRepo, vault, logger)
	f.manager = platform.NewManager(
		[]platform.Adapter{f.adapter}, creds, f.store, f.status, f.events, f.queue, logger)
	return f
}

// sealedCredential builds an active stored credential with sealed token
// material.
func (f *managerFixture) sealedCredential(t *testing.T, refreshToken string, expiresAt *time.Time) *credential.Credential {
	t.Helper()
	access, err := f.vault.Seal("access-token")
	require.NoError(t, err)
	refresh, err := f.vault.Seal(refreshToken)
	require.NoError(t, err)
	return &credential.Credential{
		ID:                "c1",
		UserID:            "u1",
		TeamID:            "t1",
		Platform:          node.PlatformGitHub,
		AccountID:         "octo-org",
		AccessCiphertext:  access,
		RefreshCiphertext: refresh,
		ExpiresAt:         expiresAt,
		IsActive:          true,
	}
}

func testItems(n int) []platform.Item {
	items := make([]platform.Item, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, platform.Item{
			ExternalID: fmt.Sprintf("gh:issue:%d", i),
			Type:       node.TypeIssue,
			Title:      fmt.Sprintf("Issue %d", i),
			UpdatedAt:  time.Now(),
		})
	}
	return items
}

func externalID(id string) interface{} {
	return mock.MatchedBy(func(req graph.CreateNodeRequest) bool {
		return req.ExternalID == id
	})
}

func TestSyncPlatform_PartialFailureIsolated(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	f.credRepo.On("GetActive", mock.Anything, "u1", node.PlatformGitHub).
		Return(f.sealedCredential(t, "", nil), nil)
	f.status.On("Get", mock.Anything, "u1", node.PlatformGitHub).
		Return(nil, repository.ErrNotFound)
	f.adapter.On("Pull", mock.Anything, "access-token", mock.Anything).
		Return(&platform.PullResult{Items: testItems(5)}, nil)

	// Item 3 fails to persist; the rest of the batch goes through.
	f.store.On("CreateNode", mock.Anything, "t1", externalID("gh:issue:3")).
		Return(nil, false, errors.New("store unavailable"))
	f.store.On("CreateNode", mock.Anything, "t1", mock.Anything).
		Return(&node.ContextNode{}, true, nil)

	var recorded *platform.SyncStatus
	f.status.On("Record", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recorded = args.Get(1).(*platform.SyncStatus)
	}).Return(nil)

	status, err := f.manager.SyncPlatform(ctx, "u1", node.PlatformGitHub, false)
	require.NoError(t, err, "per-item failures never fail the pass")
	require.Equal(t, platform.SyncPartial, status.Status)
	require.Equal(t, 4, status.ItemsSynced)
	require.Len(t, status.Errors, 1)
	require.Contains(t, status.Errors[0], "gh:issue:3")
	require.Nil(t, status.Watermark, "partial pass must not advance the watermark")
	require.Equal(t, status, recorded)
}

func TestSyncPlatform_CompletedAdvancesWatermark(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	prevWatermark := time.Now().Add(-time.Hour)
	f.credRepo.On("GetActive", mock.Anything, "u1", node.PlatformGitHub).
		Return(f.sealedCredential(t, "", nil), nil)
	f.status.On("Get", mock.Anything, "u1", node.PlatformGitHub).
		Return(&platform.SyncStatus{
			UserID:    "u1",
			Platform:  node.PlatformGitHub,
			Status:    platform.SyncCompleted,
			Watermark: &prevWatermark,
		}, nil)

	// Incremental pass pulls from the previous watermark.
	f.adapter.On("Pull", mock.Anything, "access-token", mock.MatchedBy(func(q platform.PullQuery) bool {
		return q.Since != nil && q.Since.Equal(prevWatermark)
	})).Return(&platform.PullResult{Items: testItems(2)}, nil)

	f.store.On("CreateNode", mock.Anything, "t1", mock.Anything).
		Return(&node.ContextNode{}, true, nil)
	f.status.On("Record", mock.Anything, mock.Anything).Return(nil)

	status, err := f.manager.SyncPlatform(ctx, "u1", node.PlatformGitHub, false)
	require.NoError(t, err)
	require.Equal(t, platform.SyncCompleted, status.Status)
	require.NotNil(t, status.Watermark)
	require.True(t, status.Watermark.After(prevWatermark))
	f.adapter.AssertExpectations(t)
}

func TestSyncPlatform_FullIgnoresWatermark(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	prevWatermark := time.Now().Add(-time.Hour)
	f.credRepo.On("GetActive", mock.Anything, "u1", node.PlatformGitHub).
		Return(f.sealedCredential(t, "", nil), nil)
	f.status.On("Get", mock.Anything, "u1", node.PlatformGitHub).
		Return(&platform.SyncStatus{Watermark: &prevWatermark}, nil)
	f.adapter.On("Pull", mock.Anything, "access-token", mock.MatchedBy(func(q platform.PullQuery) bool {
		return q.Since == nil
	})).Return(&platform.PullResult{}, nil)
	f.status.On("Record", mock.Anything, mock.Anything).Return(nil)

	_, err := f.manager.SyncPlatform(ctx, "u1", node.PlatformGitHub, true)
	require.NoError(t, err)
	f.adapter.AssertExpectations(t)
}

func TestSyncPlatform_TransportFailure(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	f.credRepo.On("GetActive", mock.Anything, "u1", node.PlatformGitHub).
		Return(f.sealedCredential(t, "", nil), nil)
	f.status.On("Get", mock.Anything, "u1", node.PlatformGitHub).
		Return(nil, repository.ErrNotFound)
	f.adapter.On("Pull", mock.Anything, "access-token", mock.Anything).
		Return(nil, errors.New("connection refused"))

	var recorded *platform.SyncStatus
	f.status.On("Record", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recorded = args.Get(1).(*platform.SyncStatus)
	}).Return(nil)

	_, err := f.manager.SyncPlatform(ctx, "u1", node.PlatformGitHub, false)
	require.ErrorIs(t, err, platform.ErrTransport)
	require.Equal(t, platform.SyncFailed, recorded.Status)
}

func TestSyncPlatform_ExpiredWithoutRefresh(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Minute)
	f.credRepo.On("GetActive", mock.Anything, "u1", node.PlatformGitHub).
		Return(f.sealedCredential(t, "", &expired), nil)

	_, err := f.manager.SyncPlatform(ctx, "u1", node.PlatformGitHub, false)
	require.ErrorIs(t, err, platform.ErrAuthExpired)

	// The queue handler treats this as needing user action, not a retry.
	payload, err := json.Marshal(platform.SyncJob{UserID: "u1", Platform: node.PlatformGitHub})
	require.NoError(t, err)
	require.NoError(t, f.manager.HandleSyncJob(ctx, payload))
}

func TestSyncPlatform_ExpiredRefreshes(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	expired := time.Now().Add(-time.Minute)
	f.credRepo.On("GetActive", mock.Anything, "u1", node.PlatformGitHub).
		Return(f.sealedCredential(t, "refresh-token", &expired), nil)

	fresh := time.Now().Add(time.Hour)
	f.adapter.On("Refresh", mock.Anything, "refresh-token").
		Return(&credential.Grant{AccessToken: "fresh-access", ExpiresAt: &fresh}, nil)
	f.credRepo.On("Update", mock.Anything, mock.Anything).Return(nil)

	f.status.On("Get", mock.Anything, "u1", node.PlatformGitHub).
		Return(nil, repository.ErrNotFound)
	f.adapter.On("Pull", mock.Anything, "fresh-access", mock.Anything).
		Return(&platform.PullResult{}, nil)
	f.status.On("Record", mock.Anything, mock.Anything).Return(nil)

	status, err := f.manager.SyncPlatform(ctx, "u1", node.PlatformGitHub, false)
	require.NoError(t, err)
	require.Equal(t, platform.SyncCompleted, status.Status)
	f.adapter.AssertExpectations(t)
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	f.adapter.On("VerifyWebhook", mock.Anything, mock.Anything).
		Return(errors.New("signature mismatch"))

	_, err := f.manager.HandleWebhook(ctx, node.PlatformGitHub, http.Header{}, []byte(`{}`))
	require.ErrorIs(t, err, platform.ErrInvalidSignature)
	f.events.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	f.queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhook_UnknownAccountDropped(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	f.adapter.On("VerifyWebhook", mock.Anything, mock.Anything).Return(nil)
	f.adapter.On("ParseWebhook", mock.Anything).Return([]platform.Event{
		{Type: "issues", AccountID: "stranger", Item: &platform.Item{ExternalID: "gh:issue:1", Title: "x"}},
	}, nil)
	f.credRepo.On("FindActiveByAccount", mock.Anything, node.PlatformGitHub, "stranger").
		Return(nil, nil)

	accepted, err := f.manager.HandleWebhook(ctx, node.PlatformGitHub, http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	require.Zero(t, accepted)
	f.events.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestHandleWebhook_VerifiedEnqueued(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	f.adapter.On("VerifyWebhook", mock.Anything, mock.Anything).Return(nil)
	f.adapter.On("ParseWebhook", mock.Anything).Return([]platform.Event{
		{Type: "issues", AccountID: "octo-org", Item: &platform.Item{ExternalID: "gh:issue:1", Title: "x"}},
	}, nil)

	// Two teams connected the same account; the earliest wins.
	f.credRepo.On("FindActiveByAccount", mock.Anything, node.PlatformGitHub, "octo-org").
		Return([]credential.Credential{
			{ID: "c1", TeamID: "t-early"},
			{ID: "c2", TeamID: "t-late"},
		}, nil)

	var stored *platform.WebhookEvent
	f.events.On("Append", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*platform.WebhookEvent)
	}).Return(nil)
	f.queue.On("Enqueue", mock.Anything, jobs.KindWebhook, mock.Anything).Return("job-1", nil)

	accepted, err := f.manager.HandleWebhook(ctx, node.PlatformGitHub, http.Header{}, []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, 1, accepted)
	require.Equal(t, "t-early", stored.TeamID)
	require.Equal(t, platform.EventPending, stored.Status)
	f.queue.AssertExpectations(t)
}

func TestHandleWebhookJob_IngestsStoredEvent(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	event := platform.Event{
		Type:      "issues",
		AccountID: "octo-org",
		Item:      &platform.Item{ExternalID: "gh:issue:1", Type: node.TypeIssue, Title: "Bug"},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	f.events.On("Get", mock.Anything, "ev1").Return(&platform.WebhookEvent{
		ID:       "ev1",
		Platform: node.PlatformGitHub,
		TeamID:   "t1",
		Payload:  payload,
		Status:   platform.EventPending,
	}, nil)
	f.store.On("CreateNode", mock.Anything, "t1", externalID("gh:issue:1")).
		Return(&node.ContextNode{}, true, nil)
	f.events.On("MarkProcessed", mock.Anything, "ev1", mock.Anything).Return(nil)

	jobPayload, err := json.Marshal(platform.WebhookJob{EventID: "ev1"})
	require.NoError(t, err)
	require.NoError(t, f.manager.HandleWebhookJob(ctx, jobPayload))
	f.events.AssertExpectations(t)
}

func TestHandleWebhookJob_AlreadyProcessed(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	f.events.On("Get", mock.Anything, "ev1").Return(&platform.WebhookEvent{
		ID:     "ev1",
		Status: platform.EventProcessed,
	}, nil)

	jobPayload, err := json.Marshal(platform.WebhookJob{EventID: "ev1"})
	require.NoError(t, err)
	require.NoError(t, f.manager.HandleWebhookJob(ctx, jobPayload))
	f.store.AssertNotCalled(t, "CreateNode", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhookJob_IngestFailureRetries(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	event := platform.Event{
		Type: "issues",
		Item: &platform.Item{ExternalID: "gh:issue:1", Type: node.TypeIssue, Title: "Bug"},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	f.events.On("Get", mock.Anything, "ev1").Return(&platform.WebhookEvent{
		ID:      "ev1",
		TeamID:  "t1",
		Payload: payload,
		Status:  platform.EventPending,
	}, nil)
	f.store.On("CreateNode", mock.Anything, "t1", mock.Anything).
		Return(nil, false, errors.New("store unavailable"))
	f.events.On("MarkFailed", mock.Anything, "ev1", mock.Anything).Return(nil)

	jobPayload, err := json.Marshal(platform.WebhookJob{EventID: "ev1"})
	require.NoError(t, err)
	err = f.manager.HandleWebhookJob(ctx, jobPayload)
	require.Error(t, err, "ingest failure surfaces so the retry policy applies")
	f.events.AssertExpectations(t)
}

func TestListConnections(t *testing.T) {
	f := newManagerFixture(t)
	ctx := context.Background()

	f.credRepo.On("ListActiveForUser", mock.Anything, "u1").Return([]credential.Credential{
		{Platform: node.PlatformGitHub, TeamID: "t1", AccountID: "octo-org"},
	}, nil)
	f.status.On("Get", mock.Anything, "u1", node.PlatformGitHub).
		Return(&platform.SyncStatus{Status: platform.SyncCompleted}, nil)

	connections, err := f.manager.ListConnections(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, connections, 1)
	require.Equal(t, platform.SyncCompleted, connections[0].Status.Status)
}

func TestUnknownPlatform(t *testing.T) {
	f := newManagerFixture(t)
	_, err := f.manager.SyncPlatform(context.Background(), "u1", "gitlab", false)
	require.ErrorIs(t, err, platform.ErrUnknownPlatform)
}
