package chat

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConversationLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(ConversationLogEvent{
		UserID:     "user-1",
		SessionID:  "sess-1",
		Channel:    ChannelHTTP,
		Direction:  DirectionInbound,
		EventType:  EventUserMessage,
		ContentRaw: "How many claims in 2023?",
	})

	path := filepath.Join(dir, "user-1", "sess-1.ndjson")
	line := waitForLogLine(t, path)
	var got ConversationLogEvent
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "How many claims in 2023?" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content == "" {
		t.Fatal("expected cleaned content to be populated")
	}
	if got.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestConversationLoggerGlobalFileAndClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "all", "all.ndjson")
	logger, err := NewConversationLogger(ConversationLogConfig{
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     4,
	}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	logger.Log(ConversationLogEvent{UserID: "u", SessionID: "s", EventType: EventReset})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Logging after close is a no-op.
	logger.Log(ConversationLogEvent{UserID: "u", SessionID: "s", EventType: EventReset})

	data, err := os.ReadFile(global)
	if err != nil {
		t.Fatalf("read global log: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 1 {
		t.Fatalf("expected 1 line in global log, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "u")); !os.IsNotExist(err) {
		t.Fatalf("per-session log should be disabled, stat err = %v", err)
	}
}

func TestConversationLoggerDisabledIsNoop(t *testing.T) {
	t.Parallel()

	logger, err := NewConversationLogger(ConversationLogConfig{}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	logger.Log(ConversationLogEvent{UserID: "u"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var nilLogger *ConversationLogger
	nilLogger.Log(ConversationLogEvent{})
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain\r\n\x1b]0;title\x07next\x00"
	clean := cleanForReadability(raw)
	if strings.Contains(clean, "\x1b") {
		t.Fatalf("expected escape sequences to be stripped: %q", clean)
	}
	if clean != "error plain\nnext" {
		t.Fatalf("unexpected cleaned text: %q", clean)
	}
}

func TestSafeSegment(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"user-1":      "user-1",
		"../../etc":   ".._.._etc",
		"..":          "unknown",
		"":            "unknown",
		"a b/c":       "a_b_c",
		"0199f0a1.v7": "0199f0a1.v7",
	}
	for in, want := range tests {
		if got := safeSegment(in); got != want {
			t.Errorf("safeSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
