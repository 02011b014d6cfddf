package domain

// Role tags the speaker of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of an assessment conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CloneTurns returns a copy of turns that never aliases the input.
// A nil input yields an empty, non-nil slice so it encodes as [].
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
