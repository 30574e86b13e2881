// Package api provides HTTP handlers for the chat service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/sqlchat/internal/chat"
	"github.com/ashureev/sqlchat/internal/config"
	"github.com/ashureev/sqlchat/internal/domain"
	"github.com/ashureev/sqlchat/internal/store"
	"github.com/google/uuid"
)

const exchangeWriteTimeout = 5 * time.Second

// Handler carries dependencies shared by the chat handlers.
type Handler struct {
	repo     store.Repository
	sessions *chat.Manager
	convLog  *chat.ConversationLogger
	limiter  *userLimiter
	cfg      *config.Config
	logger   *slog.Logger
}

// NewHandler creates a new Handler. convLog may be nil.
func NewHandler(repo store.Repository, sessions *chat.Manager, convLog *chat.ConversationLogger, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:     repo,
		sessions: sessions,
		convLog:  convLog,
		limiter:  newUserLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration),
		cfg:      cfg,
		logger:   logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// allow spends one unit of the user's submission budget. Blank prompts are
// no-ops in the controller and cost nothing.
func (h *Handler) allow(userID, prompt string) bool {
	if strings.TrimSpace(prompt) == "" {
		return true
	}
	return h.limiter.Allow(userID)
}

// submit runs one prompt through the caller's session and records it in the
// conversation log and, when auditing is on, the exchange table.
func (h *Handler) submit(ctx context.Context, c *chat.Controller, userID, channel, prompt string) (chat.Result, error) {
	sessionID := c.SessionID()
	res, err := c.Submit(ctx, prompt)
	if err != nil || res.Status == chat.StatusSkipped {
		return res, err
	}

	h.logEvent(userID, sessionID, channel, chat.DirectionInbound, chat.EventUserMessage, prompt, nil)
	meta := map[string]any{"duration_ms": res.Duration.Milliseconds()}
	if res.Status == chat.StatusFailed {
		h.logEvent(userID, sessionID, channel, chat.DirectionOutbound, chat.EventAgentError, res.Message, meta)
	} else {
		h.logEvent(userID, sessionID, channel, chat.DirectionOutbound, chat.EventAssistantMessage, res.Reply, meta)
	}

	if h.cfg.AuditEnabled {
		h.recordExchange(ctx, userID, sessionID, prompt, res)
	}
	return res, nil
}

func (h *Handler) reset(ctx context.Context, c *chat.Controller, userID, channel string) {
	c.Reset(ctx)
	h.logEvent(userID, c.SessionID(), channel, chat.DirectionInbound, chat.EventReset, "", nil)
}

func (h *Handler) logEvent(userID, sessionID, channel, direction, eventType, content string, meta map[string]any) {
	h.convLog.Log(chat.ConversationLogEvent{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Meta:       meta,
	})
}

func (h *Handler) recordExchange(ctx context.Context, userID, sessionID, prompt string, res chat.Result) {
	ex := &domain.Exchange{
		ID:         uuid.Must(uuid.NewV7()).String(),
		UserID:     userID,
		SessionID:  sessionID,
		Prompt:     prompt,
		Reply:      res.Reply,
		DurationMs: res.Duration.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if res.Status == chat.StatusFailed {
		ex.Status = domain.ExchangeFailed
		if res.Err != nil {
			ex.Error = res.Err.Error()
		}
	} else {
		ex.Status = domain.ExchangeAnswered
	}

	// The request may already be gone; the audit row is still wanted.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeWriteTimeout)
	defer cancel()
	if err := h.repo.RecordExchange(writeCtx, ex); err != nil {
		h.logger.Warn("Failed to record exchange", "error", err, "user_id", userID, "session_id", sessionID)
	}
}
