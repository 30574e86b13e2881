// Package agent defines the natural-language SQL agent collaborator and its
// implementations: an in-process langchaingo agent and a remote gRPC agent.
package agent

import (
	"context"
	"errors"
)

// ErrForeignMemory is returned when a Provider is asked to bind a Memory it
// did not create.
var ErrForeignMemory = errors.New("memory was not created by this provider")

// Agent answers one natural-language prompt, typically by planning and running
// SQL against the configured database.
type Agent interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// Memory is the conversation memory an agent consults across turns. Its
// contents are owned by the provider; callers can only clear it.
type Memory interface {
	Clear(ctx context.Context) error
}

// Provider creates memories and agents bound to them.
type Provider interface {
	// NewMemory returns a fresh, empty conversation memory.
	NewMemory() Memory

	// Bind returns an agent that reads and writes mem on every Run.
	Bind(mem Memory) Agent

	// Close releases database, LLM or network resources.
	Close() error
}

// Func adapts a plain function to the Agent interface.
type Func func(ctx context.Context, prompt string) (string, error)

// Run calls f.
func (f Func) Run(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// failingAgent reports a fixed error on every Run.
type failingAgent struct{ err error }

func (a failingAgent) Run(context.Context, string) (string, error) {
	return "", a.err
}
