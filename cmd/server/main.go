// sqlchat - claims chat over a natural-language SQL agent
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/sqlchat/internal/agent"
	"github.com/ashureev/sqlchat/internal/api"
	"github.com/ashureev/sqlchat/internal/chat"
	"github.com/ashureev/sqlchat/internal/config"
	"github.com/ashureev/sqlchat/internal/identity"
	"github.com/ashureev/sqlchat/internal/middleware"
	"github.com/ashureev/sqlchat/internal/store"
	"github.com/ashureev/sqlchat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

const exchangePruneInterval = time.Hour

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "agent_backend", cfg.Agent.Backend())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	provider, probe, err := newAgentProvider(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize agent", "error", err)
		os.Exit(1)
	}
	agentSvc := agent.NewService(provider, agent.ConfigFromApp(cfg.Agent), logger)
	defer func() {
		if closeErr := agentSvc.Close(); closeErr != nil {
			slog.Error("Failed to close agent", "error", closeErr)
		}
	}()
	slog.Info("Agent ready", "stats", agentSvc.GetStats())

	convLog, err := chat.NewConversationLogger(chat.ConversationLogConfig(cfg.ConversationLog), logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	sessions := chat.NewManager(agentSvc, logger)
	conns := api.NewConnRegistry()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, sessions, convLog, cfg, logger)
	chatHandler := api.NewChatHandler(baseHandler)
	wsHandler := api.NewWebSocketHandler(baseHandler, conns)
	healthHandler := api.NewHealthHandler(repo, sessions, conns, agentSvc, probe)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg), identity.SessionHeaderName))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Chat routes carry the anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Agent calls have no deadline by default, so responses are not bounded
	// by a write timeout either.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions.StartSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.TTL)
	if cfg.AuditEnabled {
		store.StartExchangePruner(ctx, repo, exchangePruneInterval, cfg.ExchangeRetention)
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	sessions.Shutdown(shutdownCtx)

	slog.Info("Server stopped successfully")
}

// newAgentProvider builds the remote gRPC agent when AGENT_ADDR is set and the
// in-process langchaingo SQL agent otherwise. probe is nil for the local agent.
func newAgentProvider(cfg *config.Config, logger *slog.Logger) (agent.Provider, func(context.Context) error, error) {
	if cfg.Agent.IsRemote() {
		slog.Info("Connecting to agent service via gRPC", "address", cfg.Agent.RemoteAddr)
		client, err := agent.NewGrpcClient(agent.GrpcClientConfig{
			Address:          cfg.Agent.RemoteAddr,
			ConnectTimeout:   cfg.Agent.ConnectTimeout,
			RequestTimeout:   cfg.Agent.RequestTimeout,
			KeepaliveTime:    cfg.Agent.KeepaliveTime,
			KeepaliveTimeout: cfg.Agent.KeepaliveWindow,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Health, nil
	}

	provider, err := agent.NewSQLProvider(cfg.Agent, logger)
	if err != nil {
		return nil, nil, err
	}
	return provider, nil, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
