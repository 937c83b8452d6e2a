package billing

import (
	"context"
	"errors"
)

// Stripe event types the service reacts to
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

var (
	ErrNotConfigured    = errors.New("billing: not configured")
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	ErrCustomerNotFound = errors.New("billing: customer not found")
)

// CheckoutSession is a hosted payment page the client is redirected to
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// WebhookEvent is a verified processor event reduced to the fields the
// entitlement flow needs.
type WebhookEvent struct {
	ID             string
	Type           string
	CustomerID     string
	SubscriptionID string
	// UserID is the checkout client reference, empty for subscription events
	UserID        string
	PaymentStatus string
}

// WebhookResult reports what a webhook delivery did
type WebhookResult struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Handled bool   `json:"handled"`
	UserID  string `json:"user_id,omitempty"`
}

// Customer identifies who is checking out. Email is optional and only
// prefills the hosted checkout page.
type Customer struct {
	UserID string
	Email  string
}

// Provider is the payment processor
type Provider interface {
	// CreateCheckoutSession starts a subscription checkout for the customer
	CreateCheckoutSession(ctx context.Context, customer Customer) (*CheckoutSession, error)

	// ConstructEvent verifies signature over payload and decodes the event
	ConstructEvent(payload []byte, signature string) (*WebhookEvent, error)
}

// CustomerStore maps processor customers to users
type CustomerStore interface {
	SaveCustomer(ctx context.Context, customerID, userID string) error
	UserForCustomer(ctx context.Context, customerID string) (string, error)
}

// Service runs the upgrade and downgrade flows driven by the processor
type Service interface {
	CreateCheckout(ctx context.Context, customer Customer) (*CheckoutSession, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
}
