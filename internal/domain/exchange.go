package domain

import "time"

// ExchangeStatus is the outcome of one chat submission.
type ExchangeStatus string

const (
	ExchangeAnswered ExchangeStatus = "answered"
	ExchangeFailed   ExchangeStatus = "failed"
)

// Exchange is the audit record of a single prompt sent to the agent.
// Exchanges are written for auditing only; sessions never read them back.
type Exchange struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Prompt     string         `json:"prompt"`
	Reply      string         `json:"reply,omitempty"`
	Error      string         `json:"error,omitempty"`
	Status     ExchangeStatus `json:"status"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}
