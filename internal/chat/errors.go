package chat

import "errors"

// ErrBusy is returned by Submit when another submission is still in flight
// on the same session.
var ErrBusy = errors.New("a message is already being processed")

// AgentError wraps any failure reported by the agent collaborator. Its
// message is the agent's message, unchanged.
type AgentError struct {
	Err error
}

func (e *AgentError) Error() string {
	if e.Err == nil {
		return "agent failed"
	}
	return e.Err.Error()
}

func (e *AgentError) Unwrap() error {
	return e.Err
}
