package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/ashureev/sqlchat/internal/chat"
	"github.com/ashureev/sqlchat/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Client frame types.
const (
	frameSubmit = "submit"
	frameReset  = "reset"
	frameRender = "render"
	framePing   = "ping"
)

// Server frame types.
const (
	framePending    = "pending"
	frameTranscript = "transcript"
	frameError      = "error"
	framePong       = "pong"
)

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type wsFrame struct {
	Type    string              `json:"type"`
	Content string              `json:"content,omitempty"`
	Status  chat.Status         `json:"status,omitempty"`
	Turns   []chat.RenderedTurn `json:"turns,omitempty"`
}

// WebSocketHandler serves the chat over a WebSocket at /ws/chat.
type WebSocketHandler struct {
	*Handler
	conns         *ConnRegistry
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(h *Handler, conns *ConnRegistry) *WebSocketHandler {
	return &WebSocketHandler{
		Handler:       h,
		conns:         conns,
		allowedOrigin: h.cfg.FrontendURL,
		isDev:         h.cfg.IsDevelopment(),
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	key := identity.SessionKey(r.Context())
	h.logger.Info("WebSocket connection request", "user_id", userID, "session_key", key, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(h.cfg.MaxRequestBodySize)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.conns.Register(key, ws)
	defer h.conns.Unregister(key, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := h.sessions.Session(key)
	if err := h.writeFrame(ctx, ws, wsFrame{Type: frameTranscript, Turns: c.Render()}); err != nil {
		return
	}

	var wg sync.WaitGroup
	h.readLoop(ctx, ws, c, userID, &wg)
	cancel()
	wg.Wait()
	h.logger.Info("Chat socket closed", "user_id", userID, "session_key", key)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, c *chat.Controller, userID string, wg *sync.WaitGroup) {
	for {
		var msg wsMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				h.logger.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		switch msg.Type {
		case frameSubmit:
			if !h.allow(userID, msg.Content) {
				_ = h.writeFrame(ctx, ws, wsFrame{Type: frameError, Content: "too many messages, slow down"})
				continue
			}
			// Submissions run beside the read loop so reset and ping stay
			// responsive while the agent works.
			wg.Add(1)
			go func(prompt string) {
				defer wg.Done()
				h.handleSubmit(ctx, ws, c, userID, prompt)
			}(msg.Content)
		case frameReset:
			h.reset(ctx, c, userID, chat.ChannelWebSocket)
			_ = h.writeFrame(ctx, ws, wsFrame{Type: frameTranscript, Turns: c.Render()})
		case frameRender:
			_ = h.writeFrame(ctx, ws, wsFrame{Type: frameTranscript, Turns: c.Render()})
		case framePing:
			_ = h.writeFrame(ctx, ws, wsFrame{Type: framePong})
		default:
			_ = h.writeFrame(ctx, ws, wsFrame{Type: frameError, Content: "unknown message type " + msg.Type})
		}
	}
}

func (h *WebSocketHandler) handleSubmit(ctx context.Context, ws *websocket.Conn, c *chat.Controller, userID, prompt string) {
	if c.Busy() {
		_ = h.writeFrame(ctx, ws, wsFrame{Type: frameError, Content: chat.ErrBusy.Error()})
		return
	}
	_ = h.writeFrame(ctx, ws, wsFrame{Type: framePending, Content: prompt})

	res, err := h.submit(ctx, c, userID, chat.ChannelWebSocket, prompt)
	if err != nil {
		_ = h.writeFrame(ctx, ws, wsFrame{Type: frameError, Content: err.Error()})
		return
	}
	_ = h.writeFrame(ctx, ws, wsFrame{
		Type:    frameTranscript,
		Content: res.Message,
		Status:  res.Status,
		Turns:   c.Render(),
	})
}

func (h *WebSocketHandler) writeFrame(ctx context.Context, ws *websocket.Conn, f wsFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		if ctx.Err() == nil {
			h.logger.Debug("WebSocket write error", "error", err)
		}
		return err
	}
	return nil
}
