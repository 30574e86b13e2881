package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/ashureev/sqlchat/internal/domain"
	"github.com/ashureev/sqlchat/internal/render"
)

// RenderedTurn is a transcript entry ready for display.
type RenderedTurn struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
	HTML    string      `json:"html"`
}

// Controller drives a single chat session. All methods are safe for
// concurrent use; at most one Submit runs at a time.
type Controller struct {
	provider agent.Provider
	renderer *render.Markdown
	logger   *slog.Logger
	now      func() time.Time

	// inflight is held for the whole of a Submit, including the agent call.
	inflight sync.Mutex

	mu      sync.RWMutex
	session *Session
}

// NewController returns a controller whose sessions get memory and agents
// from provider. renderer and logger may be nil.
func NewController(provider agent.Provider, renderer *render.Markdown, logger *slog.Logger) *Controller {
	if renderer == nil {
		renderer = render.NewMarkdown()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		provider: provider,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
}

// Initialize creates the session if it does not exist yet. Calling it again
// has no effect.
func (c *Controller) Initialize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initLocked()
}

func (c *Controller) initLocked() *Session {
	if c.session == nil {
		c.session = newSession(c.provider, c.now())
		c.logger.Debug("Chat session created", "session_id", c.session.ID)
	}
	return c.session
}

// SessionID returns the id of the current session, creating it if needed.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initLocked().ID
}

// Transcript returns a copy of the current turns.
func (c *Controller) Transcript() []domain.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	return c.session.Transcript()
}

// LastActive reports the time of the last lookup, submission or reset.
func (c *Controller) LastActive() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return time.Time{}
	}
	return c.session.LastActive()
}

// touch marks the session active without changing it.
func (c *Controller) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initLocked().lastActive = c.now()
}

// Busy reports whether a Submit is in flight.
func (c *Controller) Busy() bool {
	if c.inflight.TryLock() {
		c.inflight.Unlock()
		return false
	}
	return true
}

// Render returns every turn in order with its content rendered to HTML.
func (c *Controller) Render() []RenderedTurn {
	turns := c.Transcript()
	out := make([]RenderedTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, RenderedTurn{
			Role:    t.Role,
			Content: t.Content,
			HTML:    c.renderer.HTML(t.Content),
		})
	}
	return out
}

// Reset empties the transcript and clears the conversation memory together.
// If the memory cannot be cleared, or a submission is in flight and still
// using it, the session gets a fresh memory instead.
func (c *Controller) Reset(ctx context.Context) {
	idle := c.inflight.TryLock()
	if idle {
		defer c.inflight.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.initLocked()
	s.transcript = nil
	s.epoch++
	s.lastActive = c.now()

	if !idle {
		s.rebind(c.provider)
		c.logger.Info("Chat session reset during submission", "session_id", s.ID)
		return
	}

	if err := s.memory.Clear(ctx); err != nil {
		c.logger.Warn("Failed to clear conversation memory, replacing it",
			"session_id", s.ID,
			"error", err,
		)
		s.rebind(c.provider)
	}
	c.logger.Info("Chat session reset", "session_id", s.ID)
}

// Submit sends prompt to the agent and records the exchange. A blank prompt
// does nothing. Agent failures come back as a failed Result; the only error
// returned is ErrBusy.
func (c *Controller) Submit(ctx context.Context, prompt string) (Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return skipped(), nil
	}
	if !c.inflight.TryLock() {
		return Result{}, ErrBusy
	}
	defer c.inflight.Unlock()

	c.mu.Lock()
	s := c.initLocked()
	s.append(domain.UserTurn(prompt))
	s.lastActive = c.now()
	epoch := s.epoch
	a := s.agent
	id := s.ID
	c.mu.Unlock()

	start := c.now()
	reply, err := a.Run(ctx, prompt)
	elapsed := c.now().Sub(start)

	if err != nil {
		c.mu.Lock()
		s.lastActive = c.now()
		c.mu.Unlock()

		agentErr := &AgentError{Err: err}
		c.logger.Warn("Agent invocation failed",
			"session_id", id,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return failed(agentErr, elapsed), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s.lastActive = c.now()
	if s.epoch != epoch {
		c.logger.Info("Discarding reply for a reset transcript", "session_id", id)
		return answered(reply, elapsed), nil
	}
	s.append(domain.AssistantTurn(reply))
	return answered(reply, elapsed), nil
}

// end clears the memory of an idle session. It reports false when a
// submission is in flight and the session must be kept.
func (c *Controller) end(ctx context.Context) bool {
	if !c.inflight.TryLock() {
		return false
	}
	defer c.inflight.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return true
	}
	if err := c.session.memory.Clear(ctx); err != nil {
		c.logger.Warn("Failed to clear memory of ended session",
			"session_id", c.session.ID,
			"error", err,
		)
	}
	c.session = nil
	return true
}
