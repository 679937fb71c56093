package realtime

import (
	"sync"
	"time"
)

// connEntry tracks one registered connection and its liveness.
type connEntry struct {
	conn     Conn
	userID   string
	teamID   string
	lastPong time.Time
}

// Registry indexes this process's live connections by team and by user.
// Each server process holds its own registry; cross-process delivery
// goes through the bus.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*connEntry
	byTeam  map[string]map[string]*connEntry
	byUser  map[string]map[string]*connEntry
	now     func() time.Time
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*connEntry),
		byTeam: make(map[string]map[string]*connEntry),
		byUser: make(map[string]map[string]*connEntry),
		now:    time.Now,
	}
}

// Register adds a connection under its team and user. A connection
// starts live; Pong refreshes liveness.
func (r *Registry) Register(conn Conn, userID, teamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &connEntry{
		conn:     conn,
		userID:   userID,
		teamID:   teamID,
		lastPong: r.now(),
	}
	r.byID[conn.ID()] = entry

	if r.byTeam[teamID] == nil {
		r.byTeam[teamID] = make(map[string]*connEntry)
	}
	r.byTeam[teamID][conn.ID()] = entry

	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]*connEntry)
	}
	r.byUser[userID][conn.ID()] = entry
}

// Unregister removes a connection from every index.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(connID)
}

func (r *Registry) remove(connID string) {
	entry, ok := r.byID[connID]
	if !ok {
		return
	}
	delete(r.byID, connID)

	if conns := r.byTeam[entry.teamID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byTeam, entry.teamID)
		}
	}
	if conns := r.byUser[entry.userID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.byUser, entry.userID)
		}
	}
}

// Pong records a liveness response from a connection.
func (r *Registry) Pong(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.byID[connID]; ok {
		entry.lastPong = r.now()
	}
}

// TeamConns returns the live connections for a team.
func (r *Registry) TeamConns(teamID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byTeam[teamID])
}

// UserConns returns the live connections for a user.
func (r *Registry) UserConns(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byUser[userID])
}

// All returns every registered connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return collect(r.byID)
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// StaleSince returns connections with no pong recorded after the
// deadline. The ping loop force-closes these.
func (r *Registry) StaleSince(deadline time.Time) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []Conn
	for _, entry := range r.byID {
		if entry.lastPong.Before(deadline) {
			stale = append(stale, entry.conn)
		}
	}
	return stale
}

func collect(entries map[string]*connEntry) []Conn {
	if len(entries) == 0 {
		return nil
	}
	conns := make([]Conn, 0, len(entries))
	for _, entry := range entries {
		conns = append(conns, entry.conn)
	}
	return conns
}
