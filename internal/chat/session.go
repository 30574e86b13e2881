// Package chat holds the chat session controller: the per-browser transcript,
// its conversation memory, and the agent bound to that memory.
package chat

import (
	"slices"
	"time"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/ashureev/sqlchat/internal/domain"
	"github.com/google/uuid"
)

// Session is the state of one conversation. It is owned by a Controller and
// never shared; readers get copies of the transcript.
type Session struct {
	ID        string
	CreatedAt time.Time

	transcript []domain.Turn
	memory     agent.Memory
	agent      agent.Agent
	lastActive time.Time

	// epoch changes on every reset so an in-flight reply can tell that the
	// transcript it was answering is gone.
	epoch uint64
}

func newSession(provider agent.Provider, now time.Time) *Session {
	mem := provider.NewMemory()
	return &Session{
		ID:         uuid.Must(uuid.NewV7()).String(),
		CreatedAt:  now,
		memory:     mem,
		agent:      provider.Bind(mem),
		lastActive: now,
	}
}

// Transcript returns a copy of the turns in chronological order.
func (s *Session) Transcript() []domain.Turn {
	return slices.Clone(s.transcript)
}

// LastActive reports when the session last saw a submission or reset.
func (s *Session) LastActive() time.Time {
	return s.lastActive
}

func (s *Session) append(t domain.Turn) {
	s.transcript = append(s.transcript, t)
}

// rebind replaces the memory and agent with fresh ones from provider.
func (s *Session) rebind(provider agent.Provider) {
	s.memory = provider.NewMemory()
	s.agent = provider.Bind(s.memory)
}
