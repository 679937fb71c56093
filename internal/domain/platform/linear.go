package platform

import (
	"bytes"
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

// LinearConfig holds the OAuth app and webhook settings for Linear.
type LinearConfig struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string

	APIBaseURL  string
	AuthBaseURL string
}

// LinearAdapter is the Adapter variant for Linear. The API is GraphQL;
// pulls run one issues query filtered by the watermark.
type LinearAdapter struct {
	config LinearConfig
	client *http.Client
	now    func() time.Time
}

// NewLinearAdapter creates a Linear adapter.
func NewLinearAdapter(config LinearConfig, client *http.Client) *LinearAdapter {
	if config.APIBaseURL == "" {
		config.APIBaseURL = "https://api.linear.app"
	}
	if config.AuthBaseURL == "" {
		config.AuthBaseURL = "https://linear.app"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &LinearAdapter{config: config, client: client, now: time.Now}
}

func (a *LinearAdapter) Platform() node.Platform { return node.PlatformLinear }

func (a *LinearAdapter) AuthorizeURL(state string) string {
	query := url.Values{
		"client_id":     {a.config.ClientID},
		"response_type": {"code"},
		"scope":         {"read"},
		"state":         {state},
	}
	return a.config.AuthBaseURL + "/oauth/authorize?" + query.Encode()
}

func (a *LinearAdapter) ExchangeCode(ctx context.Context, code string) (*credential.Grant, error) {
	return a.tokenRequest(ctx, url.Values{
		"client_id":     {a.config.ClientID},
		"client_secret": {a.config.ClientSecret},
		"grant_type":    {"authorization_code"},
		"code":          {code},
	})
}

func (a *LinearAdapter) Refresh(ctx context.Context, refreshToken string) (*credential.Grant, error) {
	return a.tokenRequest(ctx, url.Values{
		"client_id":     {a.config.ClientID},
		"client_secret": {a.config.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (a *LinearAdapter) tokenRequest(ctx context.Context, form url.Values) (*credential.Grant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.APIBaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := a.do(req, &token); err != nil {
		return nil, fmt.Errorf("linear token request: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("linear returned no access token")
	}

	orgID, err := a.organizationID(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	grant := &credential.Grant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		AccountID:    orgID,
	}
	if token.Scope != "" {
		grant.Scopes = strings.Split(token.Scope, " ")
	}
	if token.ExpiresIn > 0 {
		expires := a.now().Add(time.Duration(token.ExpiresIn) * time.Second)
		grant.ExpiresAt = &expires
	}
	return grant, nil
}

const linearIssuesQuery = `query Issues($filter: IssueFilter, $first: Int) {
  issues(filter: $filter, first: $first, orderBy: updatedAt) {
    nodes {
      id
      identifier
      title
      description
      url
      updatedAt
      assignee { name }
      relations { nodes { relatedIssue { id } } }
    }
  }
}`

// Pull runs one issues query bounded by the watermark.
func (a *LinearAdapter) Pull(ctx context.Context, accessToken string, q PullQuery) (*PullResult, error) {
	limit := q.Limit
	if limit <= 0 || limit > defaultPullLimit {
		limit = defaultPullLimit
	}

	variables := map[string]interface{}{"first": limit}
	if q.Since != nil {
		variables["filter"] = map[string]interface{}{
			"updatedAt": map[string]string{"gt": q.Since.UTC().Format(time.RFC3339)},
		}
	}

	var resp struct {
		Data struct {
			Issues struct {
				Nodes []linearIssue `json:"nodes"`
			} `json:"issues"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := a.graphql(ctx, accessToken, linearIssuesQuery, variables, &resp); err != nil {
		return nil, fmt.Errorf("pulling linear issues: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("pulling linear issues: %s", resp.Errors[0].Message)
	}

	result := &PullResult{}
	for _, issue := range resp.Data.Issues.Nodes {
		item, err := issue.toItem()
		if err != nil {
			result.Errors = append(result.Errors, ItemError{
				ExternalID: issue.ID,
				Message:    err.Error(),
			})
			continue
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// VerifyWebhook checks the Linear-Signature HMAC over the raw body.
func (a *LinearAdapter) VerifyWebhook(headers http.Header, body []byte) error {
	signature := headers.Get("Linear-Signature")
	if signature == "" {
		return fmt.Errorf("missing Linear-Signature header")
	}

	mac := hmac.New(sha256.New, []byte(a.config.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func (a *LinearAdapter) ParseWebhook(body []byte) ([]Event, error) {
	var payload struct {
		Action         string      `json:"action"`
		Type           string      `json:"type"`
		OrganizationID string      `json:"organizationId"`
		Data           linearIssue `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding linear webhook: %w", err)
	}

	if payload.Type != "Issue" || payload.Action == "remove" {
		return nil, nil
	}

	item, err := payload.Data.toItem()
	if err != nil {
		return nil, fmt.Errorf("normalizing linear webhook issue: %w", err)
	}
	return []Event{{
		Type:      strings.ToLower(payload.Type) + "." + payload.Action,
		AccountID: payload.OrganizationID,
		Item:      &item,
	}}, nil
}

func (a *LinearAdapter) organizationID(ctx context.Context, accessToken string) (string, error) {
	var resp struct {
		Data struct {
			Organization struct {
				ID string `json:"id"`
			} `json:"organization"`
		} `json:"data"`
	}
	query := `query { organization { id } }`
	if err := a.graphql(ctx, accessToken, query, nil, &resp); err != nil {
		return "", fmt.Errorf("loading linear organization: %w", err)
	}
	if resp.Data.Organization.ID == "" {
		return "", fmt.Errorf("linear returned no organization")
	}
	return resp.Data.Organization.ID, nil
}

func (a *LinearAdapter) graphql(ctx context.Context, accessToken, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.APIBaseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return a.do(req, out)
}

func (a *LinearAdapter) do(req *http.Request, out interface{}) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("linear API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type linearIssue struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	UpdatedAt   string `json:"updatedAt"`
	Assignee    *struct {
		Name string `json:"name"`
	} `json:"assignee"`
	Relations struct {
		Nodes []struct {
			RelatedIssue struct {
				ID string `json:"id"`
			} `json:"relatedIssue"`
		} `json:"nodes"`
	} `json:"relations"`
}

func (i *linearIssue) toItem() (Item, error) {
	if i.ID == "" || i.Title == "" {
		return Item{}, fmt.Errorf("issue missing id or title")
	}

	updatedAt := time.Now()
	if i.UpdatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, i.UpdatedAt); err == nil {
			updatedAt = parsed
		}
	}

	item := Item{
		ExternalID: "linear:" + i.ID,
		Type:       node.TypeTask,
		Title:      i.Title,
		Content:    i.Description,
		URL:        i.URL,
		UpdatedAt:  updatedAt,
	}
	if i.Assignee != nil {
		item.Author = i.Assignee.Name
	}
	for _, rel := range i.Relations.Nodes {
		if rel.RelatedIssue.ID == "" {
			continue
		}
		item.Related = append(item.Related, RelatedRef{
			ExternalID: "linear:" + rel.RelatedIssue.ID,
			Relation:   node.RelRelatesTo,
		})
	}
	return item, nil
}
