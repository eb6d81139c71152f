package chat

import (
	"strings"
	"time"
)

// Role is the speaker of a turn. System prompts are never stored.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole accepts only the two stored roles.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleAssistant:
		return RoleAssistant, true
	default:
		return "", false
	}
}

// Message persists individual turns. Immutable once written.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"-"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is the role/content pair handed to the language model.
type Turn struct {
	Role    Role
	Content string
}

// Turns projects stored messages onto model turns, dropping blank content.
func Turns(messages []Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		turns = append(turns, Turn{Role: msg.Role, Content: content})
	}
	return turns
}

// CountUserTurns reports how many turns the visitor has contributed.
func CountUserTurns(turns []Turn) int {
	count := 0
	for _, turn := range turns {
		if turn.Role == RoleUser {
			count++
		}
	}
	return count
}
