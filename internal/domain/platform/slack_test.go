package platform

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ganot/teamgraph/internal/domain/node"
)

func slackSign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func slackHeaders(secret string, at time.Time, body []byte) http.Header {
	timestamp := fmt.Sprintf("%d", at.Unix())
	headers := http.Header{}
	headers.Set("X-Slack-Request-Timestamp", timestamp)
	headers.Set("X-Slack-Signature", slackSign(secret, timestamp, body))
	return headers
}

func TestSlackAdapter_VerifyWebhook(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	adapter := NewSlackAdapter(SlackConfig{SigningSecret: "hush"}, nil)
	adapter.now = func() time.Time { return now }

	body := []byte(`{"type":"event_callback"}`)
	require.NoError(t, adapter.VerifyWebhook(slackHeaders("hush", now, body), body))

	// Wrong secret.
	require.Error(t, adapter.VerifyWebhook(slackHeaders("other", now, body), body))

	// Tampered body.
	require.Error(t, adapter.VerifyWebhook(slackHeaders("hush", now, body), []byte(`{}`)))

	// Missing headers.
	require.Error(t, adapter.VerifyWebhook(http.Header{}, body))
}

func TestSlackAdapter_VerifyWebhookStaleTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	adapter := NewSlackAdapter(SlackConfig{SigningSecret: "hush"}, nil)
	adapter.now = func() time.Time { return now }

	body := []byte(`{}`)

	// A correctly signed request outside the freshness window is a
	// replay candidate and must be rejected.
	stale := slackHeaders("hush", now.Add(-6*time.Minute), body)
	require.Error(t, adapter.VerifyWebhook(stale, body))

	future := slackHeaders("hush", now.Add(6*time.Minute), body)
	require.Error(t, adapter.VerifyWebhook(future, body))

	edge := slackHeaders("hush", now.Add(-4*time.Minute), body)
	require.NoError(t, adapter.VerifyWebhook(edge, body))
}

func TestSlackAdapter_ParseWebhookMessage(t *testing.T) {
	adapter := NewSlackAdapter(SlackConfig{}, nil)

	events, err := adapter.ParseWebhook([]byte(`{
		"type": "event_callback",
		"team_id": "T123",
		"event": {
			"type": "message",
			"channel": "C42",
			"user": "U7",
			"text": "deploy went out",
			"ts": "1755691200.000100"
		}
	}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "message", events[0].Type)
	require.Equal(t, "T123", events[0].AccountID)
	require.Equal(t, "slack:C42:1755691200.000100", events[0].Item.ExternalID)
	require.Equal(t, node.TypeMessage, events[0].Item.Type)
	require.Equal(t, "deploy went out", events[0].Item.Title)

	// The message references its channel.
	require.Len(t, events[0].Item.Related, 1)
	require.Equal(t, "slack:channel:C42", events[0].Item.Related[0].ExternalID)
	require.Equal(t, node.RelReferences, events[0].Item.Related[0].Relation)
}

func TestSlackAdapter_ParseWebhookThreadReply(t *testing.T) {
	adapter := NewSlackAdapter(SlackConfig{}, nil)

	events, err := adapter.ParseWebhook([]byte(`{
		"type": "event_callback",
		"team_id": "T123",
		"event": {
			"type": "message",
			"channel": "C42",
			"text": "replying in thread",
			"ts": "1755691300.000200",
			"thread_ts": "1755691200.000100"
		}
	}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, events[0].Item.Related, 2)
	require.Equal(t, "slack:C42:1755691200.000100", events[0].Item.Related[1].ExternalID)
	require.Equal(t, node.RelRepliesTo, events[0].Item.Related[1].Relation)
}

func TestSlackAdapter_ParseWebhookIgnored(t *testing.T) {
	adapter := NewSlackAdapter(SlackConfig{}, nil)

	// url_verification handshakes carry nothing to ingest.
	events, err := adapter.ParseWebhook([]byte(`{"type":"url_verification","challenge":"abc"}`))
	require.NoError(t, err)
	require.Empty(t, events)

	// Edits and other subtyped messages are skipped.
	events, err = adapter.ParseWebhook([]byte(`{
		"type": "event_callback",
		"event": {"type": "message", "subtype": "message_changed", "ts": "1.2"}
	}`))
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSlackAdapter_Pull(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer xoxb-token", r.Header.Get("Authorization"))
		require.Equal(t, "public_channel", r.URL.Query().Get("types"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok": true,
			"channels": []map[string]interface{}{
				{"id": "C1", "name": "general", "purpose": map[string]string{"value": "Company wide"}},
				{"id": "C2", "name": "incidents"},
			},
		})
	})
	mux.HandleFunc("/api/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		channel := r.URL.Query().Get("channel")
		if channel == "C2" {
			json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": "not_in_channel"})
			return
		}
		require.Equal(t, "1754006400.000000", r.URL.Query().Get("oldest"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok": true,
			"messages": []map[string]string{
				{"user": "U7", "text": "rollout done", "ts": "1755691200.000100"},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := NewSlackAdapter(SlackConfig{BaseURL: server.URL}, server.Client())
	since := time.Unix(1754006400, 0)

	result, err := adapter.Pull(context.Background(), "xoxb-token", PullQuery{Since: &since, Limit: 50})
	require.NoError(t, err)

	// Two channel nodes plus one message from C1; C2's history failure
	// is recorded, not fatal.
	require.Len(t, result.Items, 3)
	require.Equal(t, "slack:channel:C1", result.Items[0].ExternalID)
	require.Equal(t, node.TypeChannel, result.Items[0].Type)
	require.Equal(t, "#general", result.Items[0].Title)
	require.Equal(t, "slack:C1:1755691200.000100", result.Items[2].ExternalID)

	require.Len(t, result.Errors, 1)
	require.Equal(t, "slack:channel:C2", result.Errors[0].ExternalID)
	require.Contains(t, result.Errors[0].Message, "not_in_channel")
}

func TestSlackAdapter_ExchangeCode(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/oauth.v2.access", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "the-code", r.FormValue("code"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":            true,
			"access_token":  "xoxb-token",
			"refresh_token": "xoxe-refresh",
			"expires_in":    43200,
			"scope":         "channels:read,channels:history",
			"team":          map[string]string{"id": "T123"},
		})
	}))
	defer server.Close()

	adapter := NewSlackAdapter(SlackConfig{BaseURL: server.URL}, server.Client())
	adapter.now = func() time.Time { return now }

	grant, err := adapter.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)
	require.Equal(t, "xoxb-token", grant.AccessToken)
	require.Equal(t, "xoxe-refresh", grant.RefreshToken)
	require.Equal(t, "T123", grant.AccountID)
	require.NotNil(t, grant.ExpiresAt)
	require.Equal(t, now.Add(12*time.Hour), *grant.ExpiresAt)
}

func TestSlackAdapter_ExchangeCodeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": "invalid_code"})
	}))
	defer server.Close()

	adapter := NewSlackAdapter(SlackConfig{BaseURL: server.URL}, server.Client())
	_, err := adapter.ExchangeCode(context.Background(), "bad")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid_code")
}
