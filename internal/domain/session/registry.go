package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ganot/teamgraph/internal/cache"
	"github.com/ganot/teamgraph/internal/repository"
)

// DefaultTTL is how long a session outlives its last activity.
const DefaultTTL = 30 * time.Minute

const cacheKeyPrefix = "session:conn:"

// Registry manages live-connection sessions with a cache fast path in
// front of durable storage. Every lookup refreshes the session's TTL.
type Registry struct {
	repo   Repository
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry creates a session registry.
func NewRegistry(repo Repository, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// GetOrCreate returns the session for a connection, creating one when
// none exists. The session's activity and expiry are refreshed either
// way.
func (r *Registry) GetOrCreate(ctx context.Context, connectionID, userID, teamID string) (*Session, error) {
	if connectionID == "" || userID == "" || teamID == "" {
		return nil, fmt.Errorf("%w: connection, user and team are required", ErrInvalidInput)
	}

	s, err := r.lookup(ctx, connectionID)
	if err == nil {
		return r.touch(ctx, s)
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	now := r.now()
	s = &Session{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		UserID:       userID,
		TeamID:       teamID,
		State:        map[string]interface{}{},
		LastActivity: now,
		ExpiresAt:    now.Add(r.ttl),
		CreatedAt:    now,
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	r.cachePut(ctx, s)

	r.logger.Debug("session created",
		"connection_id", connectionID,
		"team_id", teamID)
	return s, nil
}

// Get returns the session for a connection and refreshes its TTL.
func (r *Registry) Get(ctx context.Context, connectionID string) (*Session, error) {
	s, err := r.lookup(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return r.touch(ctx, s)
}

// MergeState shallow-merges a patch into the session's state. Keys
// absent from the patch are preserved.
func (r *Registry) MergeState(ctx context.Context, connectionID string, patch map[string]interface{}) (*Session, error) {
	s, err := r.lookup(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	if s.State == nil {
		s.State = map[string]interface{}{}
	}
	for k, v := range patch {
		s.State[k] = v
	}
	return r.touch(ctx, s)
}

// Remove drops a connection's session from storage and cache.
func (r *Registry) Remove(ctx context.Context, connectionID string) error {
	if err := r.repo.Delete(ctx, connectionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("deleting session: %w", err)
	}
	if err := r.cache.Delete(ctx, cacheKeyPrefix+connectionID); err != nil {
		r.logger.Warn("failed to drop cached session", "error", err)
	}
	return nil
}

// Sweep deletes expired sessions and their cache entries, returning how
// many were removed.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	connectionIDs, err := r.repo.DeleteExpired(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	for _, id := range connectionIDs {
		if err := r.cache.Delete(ctx, cacheKeyPrefix+id); err != nil {
			r.logger.Warn("failed to drop cached session", "connection_id", id, "error", err)
		}
	}
	if len(connectionIDs) > 0 {
		r.logger.Info("session sweep", "removed", len(connectionIDs))
	}
	return len(connectionIDs), nil
}

// lookup reads through the cache to storage without refreshing the TTL.
func (r *Registry) lookup(ctx context.Context, connectionID string) (*Session, error) {
	key := cacheKeyPrefix + connectionID
	if raw, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var s Session
		if err := json.Unmarshal(raw, &s); err == nil && !s.Expired(r.now()) {
			return &s, nil
		}
	}

	s, err := r.repo.GetByConnection(ctx, connectionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if s.Expired(r.now()) {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// touch refreshes activity and expiry, then persists and re-caches.
func (r *Registry) touch(ctx context.Context, s *Session) (*Session, error) {
	now := r.now()
	s.LastActivity = now
	s.ExpiresAt = now.Add(r.ttl)

	if err := r.repo.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("updating session: %w", err)
	}
	r.cachePut(ctx, s)
	return s, nil
}

func (r *Registry) cachePut(ctx context.Context, s *Session) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKeyPrefix+s.ConnectionID, raw, r.ttl); err != nil {
		r.logger.Warn("failed to cache session", "error", err)
	}
}
