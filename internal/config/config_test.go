package config

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "teamgraph.db", cfg.DB.Path)
	require.Equal(t, "@every 15m", cfg.Sync.Schedule)
	require.Equal(t, 30*time.Minute, cfg.Sync.SessionTTL)
	require.Empty(t, cfg.Redis.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TEAMGRAPH_SERVER_PORT", "9090")
	t.Setenv("TEAMGRAPH_DB_PATH", "/tmp/test.db")
	t.Setenv("TEAMGRAPH_REDIS_ADDR", "localhost:6379")
	t.Setenv("TEAMGRAPH_GITHUB_CLIENT_ID", "gh-client")
	t.Setenv("TEAMGRAPH_SLACK_SIGNING_SECRET", "slack-signing")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "/tmp/test.db", cfg.DB.Path)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, "gh-client", cfg.Platforms.GitHub.ClientID)
	require.Equal(t, "slack-signing", cfg.Platforms.Slack.SigningSecret)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("TEAMGRAPH_SERVER_PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 3000
sync:
  schedule: "@every 5m"
platforms:
  github:
    webhook_secret: hush
`), 0o600))
	t.Setenv("TEAMGRAPH_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3000, cfg.Server.Port)
	require.Equal(t, "@every 5m", cfg.Sync.Schedule)
	require.Equal(t, "hush", cfg.Platforms.GitHub.WebhookSecret)

	// Env still wins over the file.
	t.Setenv("TEAMGRAPH_SERVER_PORT", "4000")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, 4000, cfg.Server.Port)
}

func TestVaultKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, 32)
	cfg := VaultConfig{Key: hex.EncodeToString(raw)}

	key, err := cfg.VaultKey()
	require.NoError(t, err)
	require.Equal(t, raw, key)

	_, err = VaultConfig{Key: "zz"}.VaultKey()
	require.Error(t, err)

	_, err = VaultConfig{Key: "abcd"}.VaultKey()
	require.Error(t, err, "short keys rejected")
}
