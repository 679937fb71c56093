package credential

import (
	"time"

	"github.com/ganot/teamgraph/internal/domain/node"
)

// Credential is a stored per (user, platform) credential. Token material
// is held only in sealed form; the vault opens it on demand. At most one
// credential per (user, platform) is active.
type Credential struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	TeamID            string            `json:"team_id"`
	Platform          node.Platform     `json:"platform"`
	AccountID         string            `json:"account_id,omitempty"`
	AccessCiphertext  []byte            `json:"-"`
	RefreshCiphertext []byte            `json:"-"`
	Scopes            []string          `json:"scopes,omitempty"`
	ExpiresAt         *time.Time        `json:"expires_at,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	IsActive          bool              `json:"is_active"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Expired reports whether the access token is past its expiry. A
// credential without an expiry never expires.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Grant is plaintext token material as returned by a platform's OAuth
// exchange or refresh. It exists only in memory.
type Grant struct {
	AccessToken  string
	RefreshToken string
	Scopes       []string
	ExpiresAt    *time.Time
	AccountID    string
	Metadata     map[string]string
}
