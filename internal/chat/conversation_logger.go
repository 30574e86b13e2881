package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Conversation log channels.
const (
	ChannelHTTP      = "chat_http"
	ChannelWebSocket = "chat_ws"
)

// Conversation log directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Conversation log event types.
const (
	EventUserMessage      = "chat_user_message"
	EventAssistantMessage = "chat_assistant_message"
	EventAgentError       = "chat_agent_error"
	EventReset            = "chat_reset"
)

// ConversationLogConfig controls where conversation events are written.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// ConversationLogEvent is one NDJSON line in a conversation log.
type ConversationLogEvent struct {
	Timestamp  time.Time      `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger appends events to one NDJSON file per user session and
// optionally to a global file. Writes happen on a background goroutine; when
// the queue is full events are dropped.
type ConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan ConversationLogEvent
	done   chan struct{}
	global *os.File
}

// NewConversationLogger starts a logger. When both per-session and global
// logging are disabled it returns a logger whose Log does nothing.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (*ConversationLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &ConversationLogger{cfg: cfg, logger: logger}
	if !cfg.Enabled && !cfg.GlobalEnabled {
		l.closed = true
		return l, nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
		l.cfg.QueueSize = cfg.QueueSize
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	l.queue = make(chan ConversationLogEvent, cfg.QueueSize)
	l.done = make(chan struct{})
	go l.run()
	return l, nil
}

// Log queues event. It never blocks.
func (l *ConversationLogger) Log(event ConversationLogEvent) {
	if l == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("Conversation log queue full, dropping event",
			"user_id", event.UserID,
			"session_id", event.SessionID,
			"event_type", event.EventType,
		)
	}
}

// Close flushes queued events and closes open files.
func (l *ConversationLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	if l.global != nil {
		if err := l.global.Close(); err != nil {
			return fmt.Errorf("close global conversation log: %w", err)
		}
	}
	return nil
}

func (l *ConversationLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("Failed to encode conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			if err := l.appendSession(event, line); err != nil {
				l.logger.Warn("Failed to write conversation log",
					"user_id", event.UserID,
					"session_id", event.SessionID,
					"error", err,
				)
			}
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("Failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *ConversationLogger) appendSession(event ConversationLogEvent, line []byte) error {
	dir := filepath.Join(l.cfg.Dir, safeSegment(event.UserID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, safeSegment(event.SessionID)+".ndjson"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// safeSegment turns an id into a single path element.
func safeSegment(id string) string {
	s := unsafeSegment.ReplaceAllString(id, "_")
	if s == "" || s == "." || s == ".." {
		return "unknown"
	}
	return s
}

var (
	ansiCSI = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	ansiOSC = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)
)

// cleanForReadability strips terminal escapes and control characters and
// normalizes line endings.
func cleanForReadability(raw string) string {
	s := ansiOSC.ReplaceAllString(raw, "")
	s = ansiCSI.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
			// drop
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
