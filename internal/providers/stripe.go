package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pratik-mahalle/bibleplan/internal/config"
	"github.com/pratik-mahalle/bibleplan/internal/domain/billing"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements billing.Provider
type StripeProvider struct {
	sc            *stripe.Client
	priceID       string
	successURL    string
	cancelURL     string
	webhookSecret string
}

// NewStripeProvider creates a Stripe provider. Checkout needs a secret key
// and price; webhook verification only needs the signing secret.
func NewStripeProvider(cfg config.BillingConfig) *StripeProvider {
	p := &StripeProvider{
		priceID:       cfg.StripePriceID,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		webhookSecret: cfg.StripeWebhookSecret,
	}
	if cfg.StripeSecretKey != "" {
		p.sc = stripe.NewClient(cfg.StripeSecretKey)
	}
	return p
}

// CreateCheckoutSession starts a subscription checkout referencing the user
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, customer billing.Customer) (*billing.CheckoutSession, error) {
	if p.sc == nil || p.priceID == "" {
		return nil, billing.ErrNotConfigured
	}

	sess, err := p.sc.V1CheckoutSessions.Create(ctx, p.checkoutParams(customer))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return &billing.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) checkoutParams(customer billing.Customer) *stripe.CheckoutSessionCreateParams {
	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(customer.UserID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(p.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.successURL),
		CancelURL:  stripe.String(p.cancelURL),
		Metadata:   map[string]string{"user_id": customer.UserID},
	}
	if customer.Email != "" {
		params.CustomerEmail = stripe.String(customer.Email)
	}
	return params
}

// ConstructEvent verifies the Stripe-Signature header and decodes the fields
// of the event types the billing flow handles.
func (p *StripeProvider) ConstructEvent(payload []byte, signature string) (*billing.WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, billing.ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidSignature, err)
	}

	out := &billing.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case billing.EventCheckoutCompleted:
		var session checkoutSessionObject
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout.session: %w", err)
		}
		out.CustomerID = session.Customer
		out.SubscriptionID = session.Subscription
		out.PaymentStatus = session.PaymentStatus
		out.UserID = session.ClientReferenceID
		if out.UserID == "" {
			out.UserID = session.Metadata["user_id"]
		}

	case billing.EventSubscriptionDeleted:
		var sub subscriptionObject
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out.CustomerID = sub.Customer
		out.SubscriptionID = sub.ID
	}

	return out, nil
}

type checkoutSessionObject struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}
