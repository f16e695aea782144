package models

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles the backend understands.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ChatMessage is one entry of a conversation as it travels over the wire.
// Order is significant: oldest first.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func ValidateMessages(messages []ChatMessage) error {
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("invalid role %q at message %d", msg.Role, i)
		}
	}
	return nil
}

// LastUserMessage returns the newest user message, if any.
func LastUserMessage(messages []ChatMessage) (ChatMessage, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i], true
		}
	}
	return ChatMessage{}, false
}

type StoredMessage struct {
	ID        int64     `json:"id"`
	ConvID    string    `json:"conversation_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
