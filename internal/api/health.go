package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/ashureev/sqlchat/internal/chat"
	"github.com/ashureev/sqlchat/internal/store"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 3 * time.Second

// AgentStatus is what the health endpoint needs from the agent backend.
type AgentStatus interface {
	GetStats() agent.Stats
}

// HealthHandler reports database, session and agent status.
type HealthHandler struct {
	repo     store.Repository
	sessions *chat.Manager
	conns    *ConnRegistry
	agent    AgentStatus

	// probe optionally checks the agent backend, e.g. a remote health RPC.
	probe func(ctx context.Context) error
}

// NewHealthHandler creates a new HealthHandler. probe may be nil.
func NewHealthHandler(repo store.Repository, sessions *chat.Manager, conns *ConnRegistry, agentStatus AgentStatus, probe func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{
		repo:     repo,
		sessions: sessions,
		conns:    conns,
		agent:    agentStatus,
		probe:    probe,
	}
}

// RegisterHealth registers the health route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}

type healthResponse struct {
	Status   string      `json:"status"`
	DB       string      `json:"db"`
	Agent    string      `json:"agent"`
	Sessions int         `json:"sessions"`
	Sockets  int         `json:"sockets"`
	Backend  agent.Stats `json:"backend"`
}

// Health returns 200 when the store and agent are reachable and 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		DB:       "ok",
		Agent:    "ok",
		Sessions: h.sessions.Len(),
		Sockets:  h.conns.Len(),
		Backend:  h.agent.GetStats(),
	}

	if err := h.repo.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.DB = err.Error()
	}
	if h.probe != nil {
		if err := h.probe(ctx); err != nil {
			resp.Status = "degraded"
			resp.Agent = err.Error()
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, resp)
}
