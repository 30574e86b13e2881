package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ashureev/sqlchat/internal/chat"
	"github.com/ashureev/sqlchat/internal/identity"
	"github.com/go-chi/chi/v5"
)

// ChatHandler serves the request/response chat API.
type ChatHandler struct {
	*Handler
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(h *Handler) *ChatHandler {
	return &ChatHandler{Handler: h}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.Config)
	r.Get("/api/chat", h.Transcript)
	r.Post("/api/chat", h.Submit)
	r.Post("/api/chat/reset", h.Reset)
	if h.cfg.AuditEnabled {
		r.Get("/api/exchanges", h.Exchanges)
	}
}

type submitRequest struct {
	Message string `json:"message"`
}

type transcriptResponse struct {
	SessionID string              `json:"session_id"`
	Turns     []chat.RenderedTurn `json:"turns"`
}

type submitResponse struct {
	Status  chat.Status         `json:"status"`
	Reply   string              `json:"reply,omitempty"`
	Message string              `json:"message,omitempty"`
	Turns   []chat.RenderedTurn `json:"turns"`
}

// Config returns the strings the chat page shows.
func (h *ChatHandler) Config(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"title":       h.cfg.UI.Title,
		"description": h.cfg.UI.Description,
		"placeholder": h.cfg.UI.Placeholder,
		"backend":     h.cfg.Agent.Backend(),
	})
}

// Transcript returns the rendered transcript of the caller's session.
func (h *ChatHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	c := h.sessions.Session(identity.SessionKey(r.Context()))
	JSON(w, http.StatusOK, transcriptResponse{SessionID: c.SessionID(), Turns: c.Render()})
}

// Submit sends one message to the agent and returns the updated transcript.
func (h *ChatHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "message too large")
			return
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.allow(userID, req.Message) {
		Error(w, http.StatusTooManyRequests, "too many messages, slow down")
		return
	}

	c := h.sessions.Session(identity.SessionKey(r.Context()))
	res, err := h.submit(r.Context(), c, userID, chat.ChannelHTTP, req.Message)
	if errors.Is(err, chat.ErrBusy) {
		Error(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Chat submit failed", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	JSON(w, http.StatusOK, submitResponse{
		Status:  res.Status,
		Reply:   res.Reply,
		Message: res.Message,
		Turns:   c.Render(),
	})
}

// Reset clears the caller's transcript and conversation memory.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	c := h.sessions.Session(identity.SessionKey(r.Context()))
	h.reset(r.Context(), c, userID, chat.ChannelHTTP)
	JSON(w, http.StatusOK, transcriptResponse{SessionID: c.SessionID(), Turns: c.Render()})
}

// Exchanges lists the caller's recent audit records, newest first.
func (h *ChatHandler) Exchanges(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	exchanges, err := h.repo.ListExchanges(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("Failed to list exchanges", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list exchanges")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"exchanges": exchanges})
}
