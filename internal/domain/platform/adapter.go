package platform

import (
	"context"
	"net/http"
	"time"

	"github.com/ganot/teamgraph/internal/domain/credential"
	"github.com/ganot/teamgraph/internal/domain/node"
)

// Item is the common shape every adapter normalizes platform-native
// payloads into.
type Item struct {
	ExternalID string        `json:"external_id"`
	Type       node.NodeType `json:"type"`
	Title      string        `json:"title"`
	Content    string        `json:"content,omitempty"`
	URL        string        `json:"url,omitempty"`
	Author     string        `json:"author,omitempty"`
	Related    []RelatedRef  `json:"related,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// RelatedRef declares a relationship from an item to another item by
// external ID.
type RelatedRef struct {
	ExternalID string            `json:"external_id"`
	Relation   node.RelationType `json:"relation"`
}

// ItemError is a non-fatal failure to normalize or persist one item.
type ItemError struct {
	ExternalID string `json:"external_id"`
	Message    string `json:"message"`
}

// PullQuery bounds an incremental pull. A nil Since requests a full
// pull.
type PullQuery struct {
	Since   *time.Time
	Limit   int
	Filters map[string]string
}

// PullResult carries normalized items plus per-item errors. Partial
// failure never aborts a batch; Pull returns an error only on total
// transport failure.
type PullResult struct {
	Items  []Item
	Errors []ItemError
}

// Event is one typed event parsed from a verified webhook body.
// AccountID identifies the external account for team attribution; a nil
// Item means the event carries nothing to ingest.
type Event struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id"`
	Item      *Item  `json:"item,omitempty"`
}

// Adapter is the per-platform capability contract. One variant exists
// per external platform; the set is fixed and dispatched explicitly.
type Adapter interface {
	// Platform identifies the variant.
	Platform() node.Platform

	// AuthorizeURL builds the OAuth authorization URL for a state token.
	AuthorizeURL(state string) string

	// ExchangeCode exchanges an OAuth code for a credential grant.
	ExchangeCode(ctx context.Context, code string) (*credential.Grant, error)

	// Refresh exchanges a refresh token for a fresh grant. Variants
	// whose platform issues non-expiring tokens return
	// ErrRefreshUnsupported.
	Refresh(ctx context.Context, refreshToken string) (*credential.Grant, error)

	// Pull performs a bounded pull of items changed since the query's
	// watermark.
	Pull(ctx context.Context, accessToken string, q PullQuery) (*PullResult, error)

	// VerifyWebhook checks an inbound call's authenticity from its raw
	// headers and body using the platform's signature scheme.
	VerifyWebhook(headers http.Header, body []byte) error

	// ParseWebhook parses a verified body into zero or more events.
	ParseWebhook(body []byte) ([]Event, error)
}
