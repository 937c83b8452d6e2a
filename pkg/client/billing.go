package client

import (
	"context"
	"net/http"
)

// BillingService starts subscription checkouts
type BillingService struct {
	client *Client
}

// Checkout creates a hosted checkout page for the paid subscription
func (s *BillingService) Checkout(ctx context.Context) (*CheckoutSession, error) {
	var out CheckoutSession
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/billing/checkout", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatService talks to the study companion
type ChatService struct {
	client *Client
}

// Reply sends the conversation so far and returns the companion's answer.
// Each reply spends one credit; an exhausted allowance returns an *APIError
// for which IsNoCredits is true.
func (s *ChatService) Reply(ctx context.Context, messages []ChatMessage) (*ChatReply, error) {
	var out ChatReply
	body := map[string]interface{}{"messages": messages}
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/chat", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
