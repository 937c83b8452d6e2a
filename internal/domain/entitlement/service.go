package entitlement

import "context"

// Service is the entry point feature code uses to gate premium actions
type Service interface {
	// Consume spends one credit for action. Running out of credits is reported
	// in the result, not as an error.
	Consume(ctx context.Context, userID string, action ActionType) (*ConsumeResult, error)

	// GetEntitlement applies lazy expiry and reset and reports the balance
	GetEntitlement(ctx context.Context, userID string) (*View, error)

	// RedeemCode upgrades the user when code is on the allow-list
	RedeemCode(ctx context.Context, userID, code string) (*RedeemResult, error)

	// NotifyPaymentConfirmed marks the user paid with no expiry
	NotifyPaymentConfirmed(ctx context.Context, userID string) error

	// NotifySubscriptionCancelled returns the user to the free tier
	NotifySubscriptionCancelled(ctx context.Context, userID string) error

	// ListEvents returns a page of the user's audited consume decisions
	ListEvents(ctx context.Context, userID string, limit, offset int) ([]*Event, int64, error)
}
