package dto

import "github.com/pratik-mahalle/bibleplan/internal/domain/chat"

// ChatRequest is the conversation so far, oldest message first. The last
// message must come from the user.
type ChatRequest struct {
	Messages []chat.Message `json:"messages" validate:"required,min=1,max=50,dive"`
}

// ChatDTO is the assistant's reply
type ChatDTO struct {
	Message               chat.Message `json:"message"`
	DailyCreditsRemaining int          `json:"daily_credits_remaining"`
	Unlimited             bool         `json:"unlimited"`
}
