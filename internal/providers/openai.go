package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/pratik-mahalle/bibleplan/internal/config"
	"github.com/pratik-mahalle/bibleplan/internal/domain/chat"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter implements chat.Completer with the OpenAI chat API
type OpenAICompleter struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAICompleter creates a completer from config. It returns
// chat.ErrNotConfigured when no API key is set.
func NewOpenAICompleter(cfg config.ChatConfig) (*OpenAICompleter, error) {
	return newOpenAICompleter(cfg, "")
}

func newOpenAICompleter(cfg config.ChatConfig, baseURL string) (*OpenAICompleter, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, chat.ErrNotConfigured
	}

	oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if baseURL != "" {
		oc.BaseURL = baseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 600
	}

	return &OpenAICompleter{
		client:    openai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Complete sends the conversation and returns the first choice
func (c *OpenAICompleter) Complete(ctx context.Context, messages []chat.Message) (*chat.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    toOpenAIRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: empty response")
	}

	return &chat.Completion{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func toOpenAIRole(role string) string {
	switch role {
	case chat.RoleSystem:
		return openai.ChatMessageRoleSystem
	case chat.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
