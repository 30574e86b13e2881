package chat

import "time"

// Status is the outcome of a Submit.
type Status string

// Submit outcomes.
const (
	StatusSkipped  Status = "skipped"
	StatusAnswered Status = "answered"
	StatusFailed   Status = "failed"
)

// Result describes what a Submit did. Agent failures are reported here
// instead of as an error.
type Result struct {
	Status  Status `json:"status"`
	Reply   string `json:"reply,omitempty"`
	Message string `json:"message,omitempty"`

	// Err is the *AgentError behind a failed result.
	Err      error         `json:"-"`
	Duration time.Duration `json:"-"`
}

func skipped() Result {
	return Result{Status: StatusSkipped}
}

func answered(reply string, d time.Duration) Result {
	return Result{Status: StatusAnswered, Reply: reply, Duration: d}
}

func failed(err *AgentError, d time.Duration) Result {
	return Result{
		Status:   StatusFailed,
		Message:  "Error: " + err.Error(),
		Err:      err,
		Duration: d,
	}
}
