package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Vault     VaultConfig     `yaml:"vault"`
	Log       LogConfig       `yaml:"log"`
	Sync      SyncConfig      `yaml:"sync"`
	Platforms PlatformsConfig `yaml:"platforms"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig selects the shared cache and bus backend. An empty Addr
// runs the server on in-process implementations, which is fine for a
// single process but loses cross-process fan-out.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// VaultConfig holds the hex-encoded 32-byte key encrypting platform
// tokens at rest.
type VaultConfig struct {
	Key string `yaml:"key"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SyncConfig tunes background synchronization.
type SyncConfig struct {
	Schedule   string        `yaml:"schedule"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// PlatformConfig holds one platform's OAuth app and webhook secrets.
type PlatformConfig struct {
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
	SigningSecret string `yaml:"signing_secret"`
}

type PlatformsConfig struct {
	GitHub PlatformConfig `yaml:"github"`
	Slack  PlatformConfig `yaml:"slack"`
	Linear PlatformConfig `yaml:"linear"`
}

// VaultKey decodes the configured hex key into raw bytes.
func (c VaultConfig) VaultKey() ([]byte, error) {
	key, err := hex.DecodeString(c.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid vault key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "teamgraph.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Sync: SyncConfig{
			Schedule:   "@every 15m",
			SessionTTL: 30 * time.Minute,
		},
	}

	if path := os.Getenv("TEAMGRAPH_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if host := os.Getenv("TEAMGRAPH_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("TEAMGRAPH_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TEAMGRAPH_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if dbPath := os.Getenv("TEAMGRAPH_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if addr := os.Getenv("TEAMGRAPH_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("TEAMGRAPH_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("TEAMGRAPH_VAULT_KEY"); key != "" {
		cfg.Vault.Key = key
	}
	if level := os.Getenv("TEAMGRAPH_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if schedule := os.Getenv("TEAMGRAPH_SYNC_SCHEDULE"); schedule != "" {
		cfg.Sync.Schedule = schedule
	}

	loadPlatformEnv("GITHUB", &cfg.Platforms.GitHub)
	loadPlatformEnv("SLACK", &cfg.Platforms.Slack)
	loadPlatformEnv("LINEAR", &cfg.Platforms.Linear)

	return cfg, nil
}

func loadPlatformEnv(name string, cfg *PlatformConfig) {
	if v := os.Getenv("TEAMGRAPH_" + name + "_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("TEAMGRAPH_" + name + "_CLIENT_SECRET"); v != "" {
		cfg.ClientSecret = v
	}
	if v := os.Getenv("TEAMGRAPH_" + name + "_WEBHOOK_SECRET"); v != "" {
		cfg.WebhookSecret = v
	}
	if v := os.Getenv("TEAMGRAPH_" + name + "_SIGNING_SECRET"); v != "" {
		cfg.SigningSecret = v
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
