package domain

// Role identifies who authored a turn.
type Role string

const (
	// RoleUser marks a turn typed by the person chatting.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the agent.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one message in a chat transcript. Turns are values and are never
// modified after they are appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserTurn returns a turn authored by the user.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn returns a turn authored by the agent.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}
