package services

import (
	"context"
	"strings"

	"github.com/pratik-mahalle/bibleplan/internal/domain/chat"
	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
	apperrors "github.com/pratik-mahalle/bibleplan/internal/pkg/errors"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/logger"
)

const defaultChatHistory = 20

// ChatService implements chat.Service
type ChatService struct {
	entitlements entitlement.Service
	completer    chat.Completer
	systemPrompt string
	maxHistory   int
	logger       *logger.Logger
}

// NewChatService creates a new chat service. completer may be nil, in which
// case every request is rejected before a credit is spent.
func NewChatService(entitlements entitlement.Service, completer chat.Completer, systemPrompt string, log *logger.Logger) *ChatService {
	return &ChatService{
		entitlements: entitlements,
		completer:    completer,
		systemPrompt: systemPrompt,
		maxHistory:   defaultChatHistory,
		logger:       log,
	}
}

// Reply spends one ai_chat_reply credit and asks the model for an answer.
// A model failure after the credit was spent is not refunded.
func (s *ChatService) Reply(ctx context.Context, userID string, history []chat.Message) (*chat.Reply, error) {
	if userID == "" {
		return nil, unauthenticated()
	}
	if len(history) == 0 || history[len(history)-1].Role != chat.RoleUser {
		return nil, apperrors.BadRequest("The last message must come from the user")
	}
	if s.completer == nil {
		return nil, apperrors.ServiceUnavailable("Chat is not configured")
	}

	res, err := s.entitlements.Consume(ctx, userID, entitlement.ActionAIChatReply)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, apperrors.NoCredits("Daily credits exhausted. Upgrade or come back tomorrow.")
	}

	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}
	messages := make([]chat.Message, 0, len(history)+1)
	if prompt := strings.TrimSpace(s.systemPrompt); prompt != "" {
		messages = append(messages, chat.Message{Role: chat.RoleSystem, Content: prompt})
	}
	messages = append(messages, history...)

	completion, err := s.completer.Complete(ctx, messages)
	if err != nil {
		s.logger.With("user_id", userID).ErrorWithErr(err, "Chat completion failed after credit was spent")
		return nil, apperrors.UpstreamError("openai", err)
	}

	return &chat.Reply{
		Message:          chat.Message{Role: chat.RoleAssistant, Content: completion.Content},
		CreditsRemaining: res.DailyCreditsRemaining,
		Unlimited:        res.Unlimited,
	}, nil
}

var _ chat.Service = (*ChatService)(nil)
