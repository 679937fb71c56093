package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ganot/teamgraph/internal/bus"
	"github.com/ganot/teamgraph/internal/cache"
	"github.com/ganot/teamgraph/internal/config"
	"github.com/ganot/teamgraph/internal/domain/credential"
	"github.com/ganot/teamgraph/internal/domain/graph"
	"github.com/ganot/teamgraph/internal/domain/platform"
	"github.com/ganot/teamgraph/internal/domain/session"
	"github.com/ganot/teamgraph/internal/jobs"
	"github.com/ganot/teamgraph/internal/realtime"
	"github.com/ganot/teamgraph/internal/sqlite"
	"github.com/ganot/teamgraph/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return fmt.Errorf("preparing database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	teamRepo := sqlite.NewTeamRepository(db)
	nodeRepo := sqlite.NewNodeRepository(db)
	searchRepo := sqlite.NewSearchRepository(db)
	credRepo := sqlite.NewCredentialRepository(db)
	statusRepo := sqlite.NewSyncStatusRepository(db)
	webhookRepo := sqlite.NewWebhookEventRepository(db)
	sessionRepo := sqlite.NewSessionRepository(db)
	jobRepo := sqlite.NewJobRepository(db)

	// Redis backs the cache and the bus when configured; otherwise both
	// run in-process.
	var (
		sharedCache cache.Cache
		sharedBus   bus.Bus
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		sharedCache = cache.NewRedis(client)
		sharedBus = bus.NewRedis(client)
		logger.Info("using redis backend", "addr", cfg.Redis.Addr)
	} else {
		sharedCache = cache.NewMemory()
		sharedBus = bus.NewMemory()
		logger.Warn("redis not configured, cache and bus are process-local")
	}

	vaultKey, err := cfg.Vault.VaultKey()
	if err != nil {
		return err
	}
	vault, err := credential.NewVault(vaultKey)
	if err != nil {
		return err
	}
	credSvc := credential.NewService(credRepo, vault, logger)

	graphSvc := graph.NewService(teamRepo, nodeRepo, searchRepo, sharedCache, sharedBus, logger)

	adapters := []platform.Adapter{
		platform.NewGitHubAdapter(platform.GitHubConfig{
			ClientID:      cfg.Platforms.GitHub.ClientID,
			ClientSecret:  cfg.Platforms.GitHub.ClientSecret,
			WebhookSecret: cfg.Platforms.GitHub.WebhookSecret,
		}, nil),
		platform.NewSlackAdapter(platform.SlackConfig{
			ClientID:      cfg.Platforms.Slack.ClientID,
			ClientSecret:  cfg.Platforms.Slack.ClientSecret,
			SigningSecret: cfg.Platforms.Slack.SigningSecret,
		}, nil),
		platform.NewLinearAdapter(platform.LinearConfig{
			ClientID:      cfg.Platforms.Linear.ClientID,
			ClientSecret:  cfg.Platforms.Linear.ClientSecret,
			WebhookSecret: cfg.Platforms.Linear.WebhookSecret,
		}, nil),
	}

	queue := jobs.NewQueue(jobRepo, time.Second, logger)
	manager := platform.NewManager(adapters, credSvc, graphSvc, statusRepo, webhookRepo, queue, logger)

	queue.Register(jobs.KindSync, jobs.KindConfig{
		Policy:      jobs.SyncRetryPolicy(),
		Concurrency: 4,
	}, manager.HandleSyncJob)
	queue.Register(jobs.KindWebhook, jobs.KindConfig{
		Policy:      jobs.WebhookRetryPolicy(),
		Concurrency: 8,
	}, manager.HandleWebhookJob)
	queue.Start(ctx)
	defer queue.Stop()

	sessions := session.NewRegistry(sessionRepo, sharedCache, cfg.Sync.SessionTTL, logger)

	scheduler := jobs.NewScheduler(logger)
	if err := scheduler.Add(cfg.Sync.Schedule, "platform-sync", func() {
		enqueueSyncs(ctx, credSvc, manager, logger)
	}); err != nil {
		return fmt.Errorf("scheduling platform sync: %w", err)
	}
	if err := scheduler.Add("@every 1m", "session-sweep", func() {
		if _, err := sessions.Sweep(ctx); err != nil {
			logger.Warn("session sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling session sweep: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	connRegistry := realtime.NewRegistry()
	hub := realtime.NewHub(sharedBus, connRegistry, realtime.DefaultPingInterval, logger)
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("starting realtime hub: %w", err)
	}
	defer hub.Stop()

	server := transport.NewServer(graphSvc, manager, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := transport.NewHTTPServer(addr, server.Handler())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	return nil
}

// enqueueSyncs schedules an incremental sync for every active
// credential.
func enqueueSyncs(ctx context.Context, creds *credential.Service, manager *platform.Manager, logger *slog.Logger) {
	active, err := creds.ListActive(ctx)
	if err != nil {
		logger.Warn("failed to list active credentials", "error", err)
		return
	}
	for _, cred := range active {
		if err := manager.EnqueueSync(ctx, cred.UserID, cred.Platform, false); err != nil {
			logger.Warn("failed to enqueue sync",
				"user_id", cred.UserID,
				"platform", cred.Platform,
				"error", err)
		}
	}
}

func ensureDBDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
