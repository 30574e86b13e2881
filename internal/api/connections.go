package api

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnRegistry tracks the live chat socket of each session key. A second
// socket for the same key replaces the first.
type ConnRegistry struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewConnRegistry creates an empty registry.
func NewConnRegistry() *ConnRegistry {
	return &ConnRegistry{active: make(map[string]*websocket.Conn)}
}

// Register adds conn for key, closing any connection it replaces.
func (m *ConnRegistry) Register(key string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[key]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	m.active[key] = conn
	slog.Debug("Chat socket registered", "session_key", key)
}

// Unregister removes conn if it is still the active connection for key.
func (m *ConnRegistry) Unregister(key string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[key]; ok && current == conn {
		delete(m.active, key)
		slog.Debug("Chat socket unregistered", "session_key", key)
	}
}

// Close closes the socket for key, if any.
func (m *ConnRegistry) Close(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn, ok := m.active[key]; ok {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		delete(m.active, key)
	}
}

// Len reports the number of open sockets.
func (m *ConnRegistry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
