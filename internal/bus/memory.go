package bus

import (
	"context"
	"strings"
	"sync"
)

const subscriberBuffer = 64

type subscriber struct {
	pattern string
	ch      chan Message
}

// Memory is an in-process Bus. Multiple hubs subscribed to one Memory
// bus model multiple processes sharing a broker, which is how the
// cross-process fan-out tests run.
type Memory struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

// NewMemory creates an in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int]*subscriber)}
}

// Publish delivers the payload to every matching subscriber. A
// subscriber whose buffer is full misses the message rather than
// blocking the publisher.
func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subs {
		if !matches(sub.pattern, channel) {
			continue
		}
		select {
		case sub.ch <- Message{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

// Subscribe registers a pattern subscription.
func (m *Memory) Subscribe(_ context.Context, pattern string) (<-chan Message, func(), error) {
	sub := &subscriber{pattern: pattern, ch: make(chan Message, subscriberBuffer)}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = sub
	m.mu.Unlock()

	stop := func() {
		m.mu.Lock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub.ch)
		}
		m.mu.Unlock()
	}
	return sub.ch, stop, nil
}

// matches supports exact channels and a single trailing "*" wildcard,
// mirroring Redis glob-style patterns for the cases the hub uses.
func matches(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
