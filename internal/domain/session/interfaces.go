package session

import (
	"context"
	"time"
)

// Repository defines the session persistence operations the registry
// needs.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByConnection(ctx context.Context, connectionID string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, connectionID string) error
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
}
