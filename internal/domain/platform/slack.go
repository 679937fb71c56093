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
	"strconv"
	"strings"
	"time"

	"github.com/ganot/teamgraph/internal/domain/credential"
	"github.com/ganot/teamgraph/internal/domain/node"
)

// slackTimestampWindow bounds how stale a signed request may be before
// it is rejected as a possible replay.
const slackTimestampWindow = 5 * time.Minute

// slackHistoryChannels caps how many channels one pull walks for
// message history.
const slackHistoryChannels = 5

// SlackConfig holds the OAuth app and signing settings for Slack.
type SlackConfig struct {
	ClientID      string
	ClientSecret  string
	SigningSecret string

	BaseURL string
}

// SlackAdapter is the Adapter variant for Slack. Slack rotates tokens,
// so grants carry a refresh token and an expiry.
type SlackAdapter struct {
	config SlackConfig
	client *http.Client
	now    func() time.Time
}

// NewSlackAdapter creates a Slack adapter.
func NewSlackAdapter(config SlackConfig, client *http.Client) *SlackAdapter {
	if config.BaseURL == "" {
		config.BaseURL = "https://slack.com"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SlackAdapter{config: config, client: client, now: time.Now}
}

func (a *SlackAdapter) Platform() node.Platform { return node.PlatformSlack }

func (a *SlackAdapter) AuthorizeURL(state string) string {
	query := url.Values{
		"client_id": {a.config.ClientID},
		"scope":     {"channels:read channels:history users:read"},
		"state":     {state},
	}
	return a.config.BaseURL + "/oauth/v2/authorize?" + query.Encode()
}

func (a *SlackAdapter) ExchangeCode(ctx context.Context, code string) (*credential.Grant, error) {
	return a.tokenRequest(ctx, url.Values{
		"client_id":     {a.config.ClientID},
		"client_secret": {a.config.ClientSecret},
		"code":          {code},
	})
}

func (a *SlackAdapter) Refresh(ctx context.Context, refreshToken string) (*credential.Grant, error) {
	return a.tokenRequest(ctx, url.Values{
		"client_id":     {a.config.ClientID},
		"client_secret": {a.config.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (a *SlackAdapter) tokenRequest(ctx context.Context, form url.Values) (*credential.Grant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.BaseURL+"/api/oauth.v2.access", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token struct {
		OK           bool   `json:"ok"`
		Error        string `json:"error"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Scope        string `json:"scope"`
		Team         struct {
			ID string `json:"id"`
		} `json:"team"`
	}
	if err := a.do(req, &token); err != nil {
		return nil, fmt.Errorf("slack token request: %w", err)
	}
	if !token.OK {
		return nil, fmt.Errorf("slack token request failed: %s", token.Error)
	}

	grant := &credential.Grant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		AccountID:    token.Team.ID,
	}
	if token.Scope != "" {
		grant.Scopes = strings.Split(token.Scope, ",")
	}
	if token.ExpiresIn > 0 {
		expires := a.now().Add(time.Duration(token.ExpiresIn) * time.Second)
		grant.ExpiresAt = &expires
	}
	return grant, nil
}

// Pull lists the workspace's channels and walks recent history for the
// most recently active ones.
func (a *SlackAdapter) Pull(ctx context.Context, accessToken string, q PullQuery) (*PullResult, error) {
	limit := q.Limit
	if limit <= 0 || limit > defaultPullLimit {
		limit = defaultPullLimit
	}

	channels, err := a.listChannels(ctx, accessToken, limit)
	if err != nil {
		return nil, err
	}

	result := &PullResult{}
	for _, ch := range channels {
		if ch.ID == "" || ch.Name == "" {
			result.Errors = append(result.Errors, ItemError{
				ExternalID: ch.ID,
				Message:    "channel missing id or name",
			})
			continue
		}
		result.Items = append(result.Items, Item{
			ExternalID: "slack:channel:" + ch.ID,
			Type:       node.TypeChannel,
			Title:      "#" + ch.Name,
			Content:    ch.Purpose.Value,
			UpdatedAt:  a.now(),
		})
	}

	for i, ch := range channels {
		if i >= slackHistoryChannels || len(result.Items) >= limit {
			break
		}
		messages, err := a.channelHistory(ctx, accessToken, ch.ID, q.Since, limit-len(result.Items))
		if err != nil {
			result.Errors = append(result.Errors, ItemError{
				ExternalID: "slack:channel:" + ch.ID,
				Message:    "history: " + err.Error(),
			})
			continue
		}
		for _, msg := range messages {
			item, err := msg.toItem(ch.ID)
			if err != nil {
				result.Errors = append(result.Errors, ItemError{
					ExternalID: "slack:" + ch.ID + ":" + msg.TS,
					Message:    err.Error(),
				})
				continue
			}
			result.Items = append(result.Items, item)
		}
	}
	return result, nil
}

// VerifyWebhook checks Slack's v0 signing scheme: an HMAC over
// "v0:{timestamp}:{body}" with a freshness window on the timestamp.
func (a *SlackAdapter) VerifyWebhook(headers http.Header, body []byte) error {
	timestamp := headers.Get("X-Slack-Request-Timestamp")
	signature := headers.Get("X-Slack-Signature")
	if timestamp == "" || signature == "" {
		return fmt.Errorf("missing slack signature headers")
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed slack timestamp: %w", err)
	}
	age := a.now().Sub(time.Unix(unix, 0))
	if age > slackTimestampWindow || age < -slackTimestampWindow {
		return fmt.Errorf("slack timestamp outside freshness window")
	}

	mac := hmac.New(sha256.New, []byte(a.config.SigningSecret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func (a *SlackAdapter) ParseWebhook(body []byte) ([]Event, error) {
	var payload struct {
		Type   string `json:"type"`
		TeamID string `json:"team_id"`
		Event  struct {
			Type     string `json:"type"`
			Subtype  string `json:"subtype"`
			Channel  string `json:"channel"`
			User     string `json:"user"`
			Text     string `json:"text"`
			TS       string `json:"ts"`
			ThreadTS string `json:"thread_ts"`
		} `json:"event"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding slack webhook: %w", err)
	}

	// url_verification and other non-event callbacks parse to zero
	// events; the challenge echo is the front-end's concern.
	if payload.Type != "event_callback" || payload.Event.Type != "message" {
		return nil, nil
	}
	if payload.Event.Subtype != "" || payload.Event.TS == "" {
		return nil, nil
	}

	msg := slackMessage{
		User:     payload.Event.User,
		Text:     payload.Event.Text,
		TS:       payload.Event.TS,
		ThreadTS: payload.Event.ThreadTS,
	}
	item, err := msg.toItem(payload.Event.Channel)
	if err != nil {
		return nil, fmt.Errorf("normalizing slack message: %w", err)
	}
	return []Event{{
		Type:      "message",
		AccountID: payload.TeamID,
		Item:      &item,
	}}, nil
}

type slackChannel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Purpose struct {
		Value string `json:"value"`
	} `json:"purpose"`
}

type slackMessage struct {
	User     string `json:"user"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
}

func (m *slackMessage) toItem(channelID string) (Item, error) {
	if m.TS == "" || channelID == "" {
		return Item{}, fmt.Errorf("message missing ts or channel")
	}

	title := m.Text
	if len(title) > 80 {
		title = title[:80]
	}
	if title == "" {
		title = "(empty message)"
	}

	item := Item{
		ExternalID: "slack:" + channelID + ":" + m.TS,
		Type:       node.TypeMessage,
		Title:      title,
		Content:    m.Text,
		Author:     m.User,
		UpdatedAt:  slackTimestampToTime(m.TS),
		Related: []RelatedRef{
			{ExternalID: "slack:channel:" + channelID, Relation: node.RelReferences},
		},
	}
	if m.ThreadTS != "" && m.ThreadTS != m.TS {
		item.Related = append(item.Related, RelatedRef{
			ExternalID: "slack:" + channelID + ":" + m.ThreadTS,
			Relation:   node.RelRepliesTo,
		})
	}
	return item, nil
}

func slackTimestampToTime(ts string) time.Time {
	seconds, _, _ := strings.Cut(ts, ".")
	unix, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(unix, 0)
}

func (a *SlackAdapter) listChannels(ctx context.Context, accessToken string, limit int) ([]slackChannel, error) {
	query := url.Values{
		"types": {"public_channel"},
		"limit": {strconv.Itoa(limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.config.BaseURL+"/api/conversations.list?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var resp struct {
		OK       bool           `json:"ok"`
		Error    string         `json:"error"`
		Channels []slackChannel `json:"channels"`
	}
	if err := a.do(req, &resp); err != nil {
		return nil, fmt.Errorf("listing slack channels: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("listing slack channels: %s", resp.Error)
	}
	return resp.Channels, nil
}

func (a *SlackAdapter) channelHistory(ctx context.Context, accessToken, channelID string, since *time.Time, limit int) ([]slackMessage, error) {
	query := url.Values{
		"channel": {channelID},
		"limit":   {strconv.Itoa(limit)},
	}
	if since != nil {
		query.Set("oldest", fmt.Sprintf("%d.000000", since.Unix()))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.config.BaseURL+"/api/conversations.history?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var resp struct {
		OK       bool           `json:"ok"`
		Error    string         `json:"error"`
		Messages []slackMessage `json:"messages"`
	}
	if err := a.do(req, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp.Messages, nil
}

func (a *SlackAdapter) do(req *http.Request, out interface{}) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack API status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
