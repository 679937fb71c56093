package credential

import (
	"context"

	"github.com/ganot/teamgraph/internal/domain/node"
)

// Repository provides credential persistence.
type Repository interface {
	Put(ctx context.Context, cred *Credential) error
	Update(ctx context.Context, cred *Credential) error
	GetActive(ctx context.Context, userID string, platform node.Platform) (*Credential, error)
	DeactivateAndScrub(ctx context.Context, userID string, platform node.Platform) error
	ListActiveForUser(ctx context.Context, userID string) ([]Credential, error)
	ListActive(ctx context.Context) ([]Credential, error)
	FindActiveByAccount(ctx context.Context, platform node.Platform, accountID string) ([]Credential, error)
}
