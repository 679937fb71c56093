package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ganot/teamgraph/internal/domain/credential"
	"github.com/ganot/teamgraph/internal/domain/node"
)

// GitHubConfig holds the OAuth app and webhook settings for GitHub.
type GitHubConfig struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string

	// APIBaseURL and AuthBaseURL default to the public endpoints; tests
	// point them at a local server.
	APIBaseURL  string
	AuthBaseURL string
}

// GitHubAdapter is the Adapter variant for GitHub. GitHub OAuth app
// tokens don't expire, so Refresh is unsupported.
type GitHubAdapter struct {
	config GitHubConfig
	client *http.Client
}

// NewGitHubAdapter creates a GitHub adapter.
func NewGitHubAdapter(config GitHubConfig, client *http.Client) *GitHubAdapter {
	if config.APIBaseURL == "" {
		config.APIBaseURL = "https://api.github.com"
	}
	if config.AuthBaseURL == "" {
		config.AuthBaseURL = "https://github.com"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHubAdapter{config: config, client: client}
}

func (a *GitHubAdapter) Platform() node.Platform { return node.PlatformGitHub }

func (a *GitHubAdapter) AuthorizeURL(state string) string {
	query := url.Values{
		"client_id": {a.config.ClientID},
		"scope":     {"repo read:org"},
		"state":     {state},
	}
	return a.config.AuthBaseURL + "/login/oauth/authorize?" + query.Encode()
}

func (a *GitHubAdapter) ExchangeCode(ctx context.Context, code string) (*credential.Grant, error) {
	form := url.Values{
		"client_id":     {a.config.ClientID},
		"client_secret": {a.config.ClientSecret},
		"code":          {code},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.AuthBaseURL+"/login/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var token struct {
		AccessToken string `json:"access_token"`
		Scope       string `json:"scope"`
	}
	if err := a.do(req, &token); err != nil {
		return nil, fmt.Errorf("exchanging github code: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("github returned no access token")
	}

	login, err := a.viewerLogin(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	var scopes []string
	if token.Scope != "" {
		scopes = strings.Split(token.Scope, ",")
	}
	return &credential.Grant{
		AccessToken: token.AccessToken,
		Scopes:      scopes,
		AccountID:   login,
	}, nil
}

func (a *GitHubAdapter) Refresh(_ context.Context, _ string) (*credential.Grant, error) {
	return nil, ErrRefreshUnsupported
}

// Pull fetches issues and pull requests the token can see, changed
// since the watermark.
func (a *GitHubAdapter) Pull(ctx context.Context, accessToken string, q PullQuery) (*PullResult, error) {
	limit := q.Limit
	if limit <= 0 || limit > defaultPullLimit {
		limit = defaultPullLimit
	}

	query := url.Values{
		"filter":    {"all"},
		"state":     {"all"},
		"per_page":  {fmt.Sprintf("%d", limit)},
		"direction": {"desc"},
	}
	if q.Since != nil {
		query.Set("since", q.Since.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.config.APIBaseURL+"/issues?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	var issues []githubIssue
	if err := a.do(req, &issues); err != nil {
		return nil, fmt.Errorf("pulling github issues: %w", err)
	}

	result := &PullResult{}
	for _, issue := range issues {
		item, err := issue.toItem()
		if err != nil {
			result.Errors = append(result.Errors, ItemError{
				ExternalID: issue.NodeID,
				Message:    err.Error(),
			})
			continue
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// VerifyWebhook checks the X-Hub-Signature-256 HMAC over the raw body.
func (a *GitHubAdapter) VerifyWebhook(headers http.Header, body []byte) error {
	signature := headers.Get("X-Hub-Signature-256")
	if !strings.HasPrefix(signature, "sha256=") {
		return fmt.Errorf("missing X-Hub-Signature-256 header")
	}

	mac := hmac.New(sha256.New, []byte(a.config.WebhookSecret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func (a *GitHubAdapter) ParseWebhook(body []byte) ([]Event, error) {
	var payload struct {
		Action     string       `json:"action"`
		Issue      *githubIssue `json:"issue"`
		Repository struct {
			FullName string `json:"full_name"`
			Owner    struct {
				Login string `json:"login"`
			} `json:"owner"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding github webhook: %w", err)
	}

	if payload.Issue == nil {
		// Ping and other non-item deliveries parse to zero events.
		return nil, nil
	}

	item, err := payload.Issue.toItem()
	if err != nil {
		return nil, fmt.Errorf("normalizing github webhook issue: %w", err)
	}

	eventType := "issues"
	if payload.Issue.PullRequest != nil {
		eventType = "pull_request"
	}
	return []Event{{
		Type:      eventType,
		AccountID: payload.Repository.Owner.Login,
		Item:      &item,
	}}, nil
}

func (a *GitHubAdapter) viewerLogin(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.APIBaseURL+"/user", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	var user struct {
		Login string `json:"login"`
	}
	if err := a.do(req, &user); err != nil {
		return "", fmt.Errorf("loading github user: %w", err)
	}
	return user.Login, nil
}

func (a *GitHubAdapter) do(req *http.Request, out interface{}) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type githubIssue struct {
	NodeID      string `json:"node_id"`
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	UpdatedAt   string `json:"updated_at"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
	RepositoryURL string `json:"repository_url"`
}

func (i *githubIssue) toItem() (Item, error) {
	if i.NodeID == "" || i.Title == "" {
		return Item{}, fmt.Errorf("issue missing node_id or title")
	}

	itemType := node.TypeIssue
	if i.PullRequest != nil {
		itemType = node.TypePR
	}

	updatedAt := time.Now()
	if i.UpdatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, i.UpdatedAt); err == nil {
			updatedAt = parsed
		}
	}

	return Item{
		ExternalID: i.NodeID,
		Type:       itemType,
		Title:      i.Title,
		Content:    i.Body,
		URL:        i.HTMLURL,
		Author:     i.User.Login,
		UpdatedAt:  updatedAt,
	}, nil
}
