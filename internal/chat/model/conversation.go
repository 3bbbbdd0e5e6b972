package model

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a session. Assistant turns carry the MessageID that
// feedback refers to.
type Turn struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	MessageID string `json:"message_id,omitempty"`
}

// Session is the ordered turn list of one conversation.
type Session struct {
	ID    string `json:"conversation_id"`
	Turns []Turn `json:"turns"`
}

// ChatHistory is the wire shape the browser threads through its own state.
type ChatHistory struct {
	ChatHistory []Turn `json:"chat_history"`
}

// ToMessage converts a turn into an eino chat message.
func (t Turn) ToMessage() *schema.Message {
	if t.Role == RoleAssistant {
		return schema.AssistantMessage(t.Content, nil)
	}
	return schema.UserMessage(t.Content)
}

// ParseRole maps free-form role strings onto the two known roles.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, true
	case RoleAssistant:
		return RoleAssistant, true
	}
	return "", false
}

type ConversationRepository interface {
	// AddTurn appends a turn to the conversation
	AddTurn(ctx context.Context, conversationID string, turn Turn) error

	// LoadSession retrieves all turns of a conversation, oldest first
	LoadSession(ctx context.Context, conversationID string) (*Session, error)

	// ClearHistory removes all turns of a conversation
	ClearHistory(ctx context.Context, conversationID string) error

	// GetTurnCount returns the number of turns in the conversation
	GetTurnCount(ctx context.Context, conversationID string) (int, error)
}
