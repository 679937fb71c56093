package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganot/teamgraph/internal/domain/session"
	"github.com/ganot/teamgraph/internal/repository"
)

func newTestSession(id, connectionID string, expiresAt time.Time) *session.Session {
	now := time.Now()
	return &session.Session{
		ID:           id,
		ConnectionID: connectionID,
		UserID:       "u1",
		TeamID:       "t1",
		State:        map[string]interface{}{"view": "inbox"},
		LastActivity: now,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
	}
}

func TestSessionRepository_CreateGetUpdate(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	s := newTestSession("s1", "conn-1", time.Now().Add(time.Hour))
	require.NoError(t, repo.Create(ctx, s))

	loaded, err := repo.GetByConnection(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, "s1", loaded.ID)
	require.Equal(t, "inbox", loaded.State["view"])

	loaded.State["view"] = "search"
	loaded.State["query"] = "login bug"
	require.NoError(t, repo.Update(ctx, loaded))

	loaded, err = repo.GetByConnection(ctx, "conn-1")
	require.NoError(t, err)
	require.Equal(t, "search", loaded.State["view"])
	require.Equal(t, "login bug", loaded.State["query"])
}

func TestSessionRepository_ConnectionUnique(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	require.NoError(t, repo.Create(ctx, newTestSession("s1", "conn-1", time.Now().Add(time.Hour))))
	err := repo.Create(ctx, newTestSession("s2", "conn-1", time.Now().Add(time.Hour)))
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepository(db)

	now := time.Now()
	require.NoError(t, repo.Create(ctx, newTestSession("s1", "stale-1", now.Add(-time.Minute))))
	require.NoError(t, repo.Create(ctx, newTestSession("s2", "stale-2", now.Add(-time.Hour))))
	require.NoError(t, repo.Create(ctx, newTestSession("s3", "live-1", now.Add(time.Hour))))

	removed, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"stale-1", "stale-2"}, removed)

	_, err = repo.GetByConnection(ctx, "stale-1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetByConnection(ctx, "live-1")
	require.NoError(t, err)

	removed, err = repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Empty(t, removed)
}
