package client

import "time"

// Unlimited is the remaining balance reported for paid users
const Unlimited = -1

// Entitlement is the caller's tier and balance
type Entitlement struct {
	Tier                  string     `json:"tier"`
	DailyCreditsRemaining int        `json:"daily_credits_remaining"`
	DailyAllowance        int        `json:"daily_allowance"`
	Unlimited             bool       `json:"unlimited"`
	LastResetDate         string     `json:"last_reset_date,omitempty"`
	ProExpiresAt          *time.Time `json:"pro_expires_at,omitempty"`
	ActionTypes           []string   `json:"action_types,omitempty"`
}

// ConsumeResult is the decision for one consume call. OK is false with
// Reason "no_credits" when the daily allowance is spent.
type ConsumeResult struct {
	OK                    bool   `json:"ok"`
	DailyCreditsRemaining int    `json:"daily_credits_remaining"`
	Unlimited             bool   `json:"unlimited"`
	Reason                string `json:"reason,omitempty"`
}

// RedeemResult is returned for an accepted code
type RedeemResult struct {
	OK           bool       `json:"ok"`
	Tier         string     `json:"tier"`
	ProExpiresAt *time.Time `json:"pro_expires_at,omitempty"`
}

// CreditEvent is one audited consume decision
type CreditEvent struct {
	ID               string    `json:"id"`
	ActionType       string    `json:"action_type"`
	Outcome          string    `json:"outcome"`
	CreditsRemaining int       `json:"credits_remaining"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Page is a page of results
type Page[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ListOptions contains pagination options
type ListOptions struct {
	Page     int
	PageSize int
}

// CheckoutSession is a hosted payment page
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// ChatMessage is one turn of a conversation. Role is "user" or "assistant".
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatReply is the companion's answer
type ChatReply struct {
	Message               ChatMessage `json:"message"`
	DailyCreditsRemaining int         `json:"daily_credits_remaining"`
	Unlimited             bool        `json:"unlimited"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
