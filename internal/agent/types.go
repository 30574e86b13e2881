package agent

import (
	"time"

	"github.com/ashureev/sqlchat/internal/config"
)

// Remote agent RPC methods. Payloads are google.protobuf.Struct values so the
// service can be implemented without shared generated code.
const (
	RemoteServiceName = "sqlchat.agent.v1.AgentService"
	methodRun         = "/" + RemoteServiceName + "/Run"
	methodReset       = "/" + RemoteServiceName + "/Reset"
)

// Payload field names used by the remote agent service.
const (
	fieldSessionID = "session_id"
	fieldPrompt    = "prompt"
	fieldOutput    = "output"
	fieldError     = "error"
	fieldTools     = "tools_used"
)

// Config holds agent runtime settings shared by both backends.
type Config struct {
	Timeout       time.Duration
	MaxIterations int
	TopK          int
}

// DefaultConfig returns default agent configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 15,
		TopK:          100,
	}
}

// ConfigFromApp derives agent settings from the application configuration.
func ConfigFromApp(cfg config.AgentConfig) Config {
	out := DefaultConfig()
	out.Timeout = cfg.Timeout
	if cfg.MaxIterations > 0 {
		out.MaxIterations = cfg.MaxIterations
	}
	if cfg.TopK > 0 {
		out.TopK = cfg.TopK
	}
	return out
}

// Stats describes the agent backend for health reporting.
type Stats struct {
	Backend string   `json:"backend"`
	Dialect string   `json:"dialect,omitempty"`
	Tables  []string `json:"tables,omitempty"`
	Tools   []string `json:"tools,omitempty"`
}
