package chat

import (
	"context"
	"errors"
)

// Roles accepted in a conversation
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrNotConfigured = errors.New("chat: language model not configured")

// Message is one turn of the conversation
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required,max=4000"`
}

// Completion is the model's answer
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Reply is returned to the caller after a credit was spent
type Reply struct {
	Message          Message `json:"message"`
	CreditsRemaining int     `json:"daily_credits_remaining"`
	Unlimited        bool    `json:"unlimited"`
}

// Completer produces assistant replies from a conversation
type Completer interface {
	Complete(ctx context.Context, messages []Message) (*Completion, error)
}

// Service answers chat turns, spending one ai_chat_reply credit per reply
type Service interface {
	Reply(ctx context.Context, userID string, history []Message) (*Reply, error)
}
