package session

import "time"

// Session is per-connection working state for a live client. State is a
// shallow key-value bag merged on update, never replaced wholesale.
type Session struct {
	ID           string                 `json:"id"`
	ConnectionID string                 `json:"connection_id"`
	UserID       string                 `json:"user_id"`
	TeamID       string                 `json:"team_id"`
	State        map[string]interface{} `json:"state"`
	LastActivity time.Time              `json:"last_activity"`
	ExpiresAt    time.Time              `json:"expires_at"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Expired reports whether the session's TTL has lapsed.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
