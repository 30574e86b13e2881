package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/ashureev/sqlchat/internal/render"
)

// Manager maps browser session keys to controllers and ends idle sessions.
type Manager struct {
	provider agent.Provider
	renderer *render.Markdown
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewManager creates an empty manager. Controllers share one renderer.
func NewManager(provider agent.Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: provider,
		renderer: render.NewMarkdown(),
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Controller),
	}
}

// Session returns the controller for key, creating and initializing it on
// first use. Every call counts as activity for the idle sweeper.
func (m *Manager) Session(key string) *Controller {
	m.mu.RLock()
	c, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		c.touch()
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.sessions[key]; ok {
		c.touch()
		return c
	}
	c = NewController(m.provider, m.renderer, m.logger.With("session_key", key))
	c.now = m.now
	c.Initialize()
	m.sessions[key] = c
	return c
}

// Lookup returns the controller for key without creating one.
func (m *Manager) Lookup(key string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[key]
	return c, ok
}

// Drop ends the session for key. It reports whether a session was removed;
// a session with a submission in flight is kept.
func (m *Manager) Drop(ctx context.Context, key string) bool {
	m.mu.Lock()
	c, ok := m.sessions[key]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if !c.end(ctx) {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, key)
	m.mu.Unlock()
	return true
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep ends sessions idle for longer than ttl and returns how many ended.
func (m *Manager) Sweep(ctx context.Context, ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)

	m.mu.RLock()
	var expired []string
	for key, c := range m.sessions {
		if c.LastActive().Before(cutoff) {
			expired = append(expired, key)
		}
	}
	m.mu.RUnlock()

	ended := 0
	for _, key := range expired {
		if ctx.Err() != nil {
			break
		}
		if m.Drop(ctx, key) {
			ended++
		}
	}
	if ended > 0 {
		m.logger.Info("Session sweeper ended idle sessions", "count", ended, "ttl", ttl)
	}
	return ended
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		m.logger.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				m.Sweep(ctx, ttl)
			case <-ctx.Done():
				m.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Shutdown ends every idle session, releasing remote memories.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	m.mu.RUnlock()

	for _, key := range keys {
		m.Drop(ctx, key)
	}
}
