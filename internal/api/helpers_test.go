package api

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/ashureev/sqlchat/internal/chat"
	"github.com/ashureev/sqlchat/internal/config"
	"github.com/ashureev/sqlchat/internal/identity"
	"github.com/ashureev/sqlchat/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const (
	testUser    = "anon_0123456789abcdef0123456789abcdef"
	testSession = "tab-1"
)

type nopMemory struct{}

func (nopMemory) Clear(context.Context) error { return nil }

// replyProvider answers every prompt with reply.
type replyProvider struct {
	reply func(ctx context.Context, prompt string) (string, error)
}

func (p replyProvider) NewMemory() agent.Memory { return nopMemory{} }

func (p replyProvider) Bind(agent.Memory) agent.Agent { return agent.Func(p.reply) }

func (p replyProvider) Close() error { return nil }

type testEnv struct {
	router   chi.Router
	repo     store.Repository
	sessions *chat.Manager
	conns    *ConnRegistry
	cfg      *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		AuditEnabled:       true,
		MaxRequestBodySize: 1 << 10,
		UI: config.UIConfig{
			Title:       "Health Hackathon Chatbot",
			Description: "Ask about claims in the HealthHackathan database.",
			Placeholder: "Ask a question about claims",
		},
		Agent:     config.AgentConfig{Provider: config.ProviderAzure},
		RateLimit: config.RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute},
	}
}

// withTestIdentity stands in for identity.Middleware with a fixed user.
func withTestIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), testUser, testSession)))
	})
}

func newTestEnv(t *testing.T, cfg *config.Config, reply func(ctx context.Context, prompt string) (string, error)) *testEnv {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc := agent.NewService(replyProvider{reply: reply}, agent.DefaultConfig(), nil)
	sessions := chat.NewManager(svc, nil)
	conns := NewConnRegistry()

	h := NewHandler(repo, sessions, nil, cfg, nil)
	r := chi.NewRouter()
	r.Use(withTestIdentity)
	NewChatHandler(h).RegisterRoutes(r)
	NewHealthHandler(repo, sessions, conns, svc, nil).RegisterHealth(r)
	r.Get("/ws/chat", NewWebSocketHandler(h, conns).ServeHTTP)

	return &testEnv{router: r, repo: repo, sessions: sessions, conns: conns, cfg: cfg}
}

func answer(replies map[string]string) func(context.Context, string) (string, error) {
	return func(_ context.Context, prompt string) (string, error) {
		if r, ok := replies[prompt]; ok {
			return r, nil
		}
		return "", context.DeadlineExceeded
	}
}

type agentStatusFunc func() string

func (f agentStatusFunc) GetStats() agent.Stats { return agent.Stats{Backend: f()} }
