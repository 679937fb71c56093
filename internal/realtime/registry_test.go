package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// stubConn is an in-memory Conn recording what the hub sends it.
type stubConn struct {
	id string

	mu      sync.Mutex
	sent    [][]byte
	pings   int
	closed  bool
	sendErr error
	pingErr error
}

func newStubConn(id string) *stubConn {
	return &stubConn{id: id}
}

func (c *stubConn) ID() string { return c.id }

func (c *stubConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *stubConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConn) sentPayloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *stubConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestRegistry_Indexes(t *testing.T) {
	r := NewRegistry()

	c1 := newStubConn("c1")
	c2 := newStubConn("c2")
	c3 := newStubConn("c3")
	r.Register(c1, "u1", "t1")
	r.Register(c2, "u1", "t1")
	r.Register(c3, "u2", "t2")

	require.Equal(t, 3, r.Len())
	require.Len(t, r.TeamConns("t1"), 2)
	require.Len(t, r.TeamConns("t2"), 1)
	require.Len(t, r.UserConns("u1"), 2)
	require.Empty(t, r.TeamConns("ghost"))

	r.Unregister("c1")
	require.Equal(t, 2, r.Len())
	require.Len(t, r.TeamConns("t1"), 1)
	require.Len(t, r.UserConns("u1"), 1)

	// Unregistering an unknown ID is a no-op.
	r.Unregister("c1")
	require.Equal(t, 2, r.Len())
}

func TestRegistry_StaleSince(t *testing.T) {
	r := NewRegistry()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	c1 := newStubConn("c1")
	c2 := newStubConn("c2")
	r.Register(c1, "u1", "t1")
	r.Register(c2, "u2", "t1")

	// c2 pongs a minute later; c1 never does.
	now = now.Add(time.Minute)
	r.Pong("c2")

	stale := r.StaleSince(now.Add(-30 * time.Second))
	require.Len(t, stale, 1)
	require.Equal(t, "c1", stale[0].ID())

	require.Empty(t, r.StaleSince(now.Add(-2*time.Minute)))
}
