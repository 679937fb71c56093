package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ganot/teamgraph/internal/bus"
)

// DefaultPingInterval is how often the hub pings its connections. A
// connection that misses a full interval without a pong is force-closed.
const DefaultPingInterval = 30 * time.Second

// Hub fans bus messages out to this process's live connections and runs
// the liveness loop. Publishing goes through the bus so every process,
// including this one, delivers through the same path.
type Hub struct {
	bus      bus.Bus
	registry *Registry
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	stops   []func()
	done    chan struct{}
	started bool
}

// NewHub creates a hub over a bus and a local connection registry.
func NewHub(b bus.Bus, registry *Registry, pingInterval time.Duration, logger *slog.Logger) *Hub {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Hub{
		bus:      b,
		registry: registry,
		interval: pingInterval,
		logger:   logger,
	}
}

// Start subscribes to the team and user channel patterns and launches
// the delivery and ping loops.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return fmt.Errorf("hub already started")
	}

	for _, pattern := range []string{bus.TeamChannelPrefix + "*", bus.UserChannelPrefix + "*"} {
		messages, stop, err := h.bus.Subscribe(ctx, pattern)
		if err != nil {
			for _, s := range h.stops {
				s()
			}
			h.stops = nil
			return fmt.Errorf("subscribing to %s: %w", pattern, err)
		}
		h.stops = append(h.stops, stop)
		go h.deliver(messages)
	}

	h.done = make(chan struct{})
	go h.pingLoop()
	h.started = true
	return nil
}

// Stop releases the bus subscriptions and halts the ping loop.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return
	}
	for _, stop := range h.stops {
		stop()
	}
	h.stops = nil
	close(h.done)
	h.started = false
}

// BroadcastTeam publishes a payload to every member of a team, across
// all server processes.
func (h *Hub) BroadcastTeam(ctx context.Context, teamID string, payload []byte) error {
	return h.bus.Publish(ctx, bus.TeamChannel(teamID), payload)
}

// BroadcastUser publishes a payload to every connection of a user,
// across all server processes.
func (h *Hub) BroadcastUser(ctx context.Context, userID string, payload []byte) error {
	return h.bus.Publish(ctx, bus.UserChannel(userID), payload)
}

// deliver routes bus messages to the local connections the channel
// addresses.
func (h *Hub) deliver(messages <-chan bus.Message) {
	for msg := range messages {
		var conns []Conn
		switch {
		case strings.HasPrefix(msg.Channel, bus.TeamChannelPrefix):
			conns = h.registry.TeamConns(strings.TrimPrefix(msg.Channel, bus.TeamChannelPrefix))
		case strings.HasPrefix(msg.Channel, bus.UserChannelPrefix):
			conns = h.registry.UserConns(strings.TrimPrefix(msg.Channel, bus.UserChannelPrefix))
		default:
			continue
		}

		for _, conn := range conns {
			if err := conn.Send(msg.Payload); err != nil {
				h.logger.Warn("dropping dead connection",
					"connection_id", conn.ID(),
					"error", err)
				h.registry.Unregister(conn.ID())
				_ = conn.Close()
			}
		}
	}
}

// pingLoop pings every connection each interval and force-closes those
// that missed the previous interval's pong.
func (h *Hub) pingLoop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case now := <-ticker.C:
			for _, conn := range h.registry.StaleSince(now.Add(-2 * h.interval)) {
				h.logger.Info("closing unresponsive connection", "connection_id", conn.ID())
				h.registry.Unregister(conn.ID())
				_ = conn.Close()
			}
			for _, conn := range h.registry.All() {
				if err := conn.Ping(); err != nil {
					h.registry.Unregister(conn.ID())
					_ = conn.Close()
				}
			}
		}
	}
}
