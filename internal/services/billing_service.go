package services

import (
	"context"
	"errors"

	"github.com/pratik-mahalle/bibleplan/internal/domain/billing"
	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
	apperrors "github.com/pratik-mahalle/bibleplan/internal/pkg/errors"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/logger"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/metrics"
)

// BillingService implements billing.Service. It turns processor events into
// entitlement upgrades and downgrades.
type BillingService struct {
	provider     billing.Provider
	customers    billing.CustomerStore
	entitlements entitlement.Service
	logger       *logger.Logger
}

// NewBillingService creates a new billing service
func NewBillingService(provider billing.Provider, customers billing.CustomerStore, entitlements entitlement.Service, log *logger.Logger) *BillingService {
	return &BillingService{
		provider:     provider,
		customers:    customers,
		entitlements: entitlements,
		logger:       log,
	}
}

// CreateCheckout starts a subscription checkout for the user
func (s *BillingService) CreateCheckout(ctx context.Context, customer billing.Customer) (*billing.CheckoutSession, error) {
	userID := customer.UserID
	if userID == "" {
		return nil, apperrors.Unauthorized("Authentication required")
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, customer)
	if errors.Is(err, billing.ErrNotConfigured) {
		return nil, apperrors.ServiceUnavailable("Billing is not configured")
	}
	if err != nil {
		s.logger.With("user_id", userID).ErrorWithErr(err, "Failed to create checkout session")
		return nil, apperrors.UpstreamError("stripe", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":    userID,
		"session_id": sess.ID,
	}).Info("Checkout session created")
	return sess, nil
}

// HandleWebhook verifies and applies one processor event. Returning an
// error makes the processor redeliver, so events that can never succeed
// are acknowledged instead.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookResult, error) {
	event, err := s.provider.ConstructEvent(payload, signature)
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		metrics.RecordWebhookEvent("unknown", "not_configured")
		return nil, apperrors.ServiceUnavailable("Webhook secret not configured")
	case errors.Is(err, billing.ErrInvalidSignature):
		metrics.RecordWebhookEvent("unknown", "invalid_signature")
		s.logger.WarnWithErr(err, "Rejected webhook with invalid signature")
		return nil, apperrors.BadRequest("Invalid Stripe signature")
	case err != nil:
		metrics.RecordWebhookEvent("unknown", "malformed")
		return nil, apperrors.BadRequest("Malformed webhook event")
	}

	log := s.logger.WithFields(map[string]interface{}{
		"event_id": event.ID,
		"type":     event.Type,
	})
	result := &billing.WebhookResult{EventID: event.ID, Type: event.Type}

	switch event.Type {
	case billing.EventCheckoutCompleted:
		err = s.handleCheckoutCompleted(ctx, event, result)
	case billing.EventSubscriptionDeleted:
		err = s.handleSubscriptionDeleted(ctx, event, result)
	default:
		log.Debug("Ignoring unhandled webhook event")
	}

	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "failed")
		log.ErrorWithErr(err, "Webhook processing failed")
		return nil, err
	}

	status := "ignored"
	if result.Handled {
		status = "handled"
	}
	metrics.RecordWebhookEvent(event.Type, status)
	return result, nil
}

func (s *BillingService) handleCheckoutCompleted(ctx context.Context, event *billing.WebhookEvent, result *billing.WebhookResult) error {
	if event.UserID == "" {
		s.logger.With("event_id", event.ID).Warn("Checkout completed without a client reference")
		return nil
	}
	if !paymentSettled(event.PaymentStatus) {
		s.logger.WithFields(map[string]interface{}{
			"event_id":       event.ID,
			"payment_status": event.PaymentStatus,
		}).Info("Checkout completed without a settled payment")
		return nil
	}

	if event.CustomerID != "" {
		if err := s.customers.SaveCustomer(ctx, event.CustomerID, event.UserID); err != nil {
			return apperrors.DatabaseError("Failed to save billing customer", err)
		}
	}

	if err := s.entitlements.NotifyPaymentConfirmed(ctx, event.UserID); err != nil {
		return err
	}

	result.Handled = true
	result.UserID = event.UserID
	return nil
}

func (s *BillingService) handleSubscriptionDeleted(ctx context.Context, event *billing.WebhookEvent, result *billing.WebhookResult) error {
	if event.CustomerID == "" {
		return nil
	}

	userID, err := s.customers.UserForCustomer(ctx, event.CustomerID)
	if errors.Is(err, billing.ErrCustomerNotFound) {
		s.logger.WithFields(map[string]interface{}{
			"event_id":    event.ID,
			"customer_id": event.CustomerID,
		}).Warn("Subscription deleted for unknown customer")
		return nil
	}
	if err != nil {
		return apperrors.DatabaseError("Failed to look up billing customer", err)
	}

	if err := s.entitlements.NotifySubscriptionCancelled(ctx, userID); err != nil {
		return err
	}

	result.Handled = true
	result.UserID = userID
	return nil
}

// paymentSettled accepts a charged checkout and a subscription started with
// nothing due (a full discount or trial). Anything else, including "unpaid"
// for delayed payment methods, waits for a later event.
func paymentSettled(status string) bool {
	return status == "paid" || status == "no_payment_required"
}

var _ billing.Service = (*BillingService)(nil)
