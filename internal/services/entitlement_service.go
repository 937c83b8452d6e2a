package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
	apperrors "github.com/pratik-mahalle/bibleplan/internal/pkg/errors"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/logger"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/metrics"
)

const (
	defaultMaxConsumeAttempts = 3
	defaultEventsPageSize     = 20
	maxEventsPageSize         = 100
)

// EntitlementOptions configures an EntitlementService
type EntitlementOptions struct {
	Allowance   int
	Actions     []entitlement.ActionType
	Codes       []entitlement.PromoCode
	MaxAttempts int
	// Now defaults to time.Now
	Now func() time.Time
}

// EntitlementService implements entitlement.Service on top of a Store.
// It keeps no per-user state between calls; every decision is made from a
// fresh read and committed with a conditional write.
type EntitlementService struct {
	store       entitlement.Store
	audit       entitlement.AuditLog
	policy      entitlement.ResetPolicy
	actions     entitlement.ActionSet
	codes       entitlement.CodeCatalog
	maxAttempts int
	now         func() time.Time
	logger      *logger.Logger
}

// NewEntitlementService creates a new entitlement service. audit may be nil.
func NewEntitlementService(store entitlement.Store, audit entitlement.AuditLog, opts EntitlementOptions, log *logger.Logger) *EntitlementService {
	actions := opts.Actions
	if len(actions) == 0 {
		actions = entitlement.DefaultActionTypes
	}
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = defaultMaxConsumeAttempts
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &EntitlementService{
		store:       store,
		audit:       audit,
		policy:      entitlement.NewResetPolicy(opts.Allowance),
		actions:     entitlement.NewActionSet(actions...),
		codes:       entitlement.NewCodeCatalog(opts.Codes...),
		maxAttempts: attempts,
		now:         now,
		logger:      log,
	}
}

// Actions returns the accepted action types
func (s *EntitlementService) Actions() []entitlement.ActionType {
	return s.actions.List()
}

// Consume spends one credit for action
func (s *EntitlementService) Consume(ctx context.Context, userID string, action entitlement.ActionType) (*entitlement.ConsumeResult, error) {
	if userID == "" {
		return nil, unauthenticated()
	}
	if !s.actions.Contains(action) {
		return nil, apperrors.Wrap(entitlement.ErrUnknownAction, apperrors.ErrCodeBadRequest,
			fmt.Sprintf("Unknown action type %q", action), http.StatusBadRequest)
	}

	log := s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"action":  string(action),
	})

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		now := s.now()

		rec, err := s.resolve(ctx, userID, now)
		if err != nil {
			metrics.RecordConsume(string(action), "error")
			return nil, s.storeError(err)
		}

		if rec.HasActivePaid(now) {
			s.recordEvent(ctx, userID, action, entitlement.OutcomeUnlimited, entitlement.Unlimited, now)
			metrics.RecordConsume(string(action), string(entitlement.OutcomeUnlimited))
			return &entitlement.ConsumeResult{
				OK:                    true,
				DailyCreditsRemaining: entitlement.Unlimited,
				Unlimited:             true,
			}, nil
		}

		if rec.DailyCredits <= 0 {
			s.recordEvent(ctx, userID, action, entitlement.OutcomeNoCredits, 0, now)
			metrics.RecordConsume(string(action), string(entitlement.OutcomeNoCredits))
			log.Info("Daily credits exhausted")
			return &entitlement.ConsumeResult{
				OK:     false,
				Reason: entitlement.ReasonNoCredits,
			}, nil
		}

		err = s.store.ConditionalDecrement(ctx, userID, rec.DailyCredits)
		if errors.Is(err, entitlement.ErrConflict) {
			metrics.RecordConsumeConflict()
			log.With("attempt", attempt).Debug("Credit balance changed concurrently, retrying")
			continue
		}
		if err != nil {
			metrics.RecordConsume(string(action), "error")
			return nil, s.storeError(err)
		}

		remaining := rec.DailyCredits - 1
		s.recordEvent(ctx, userID, action, entitlement.OutcomeConsumed, remaining, now)
		metrics.RecordConsume(string(action), string(entitlement.OutcomeConsumed))
		return &entitlement.ConsumeResult{
			OK:                    true,
			DailyCreditsRemaining: remaining,
		}, nil
	}

	metrics.RecordConsume(string(action), "contention")
	log.With("attempts", s.maxAttempts).Warn("Gave up consuming credit after repeated conflicts")
	return nil, apperrors.Unavailable("Entitlement store is busy, please retry",
		fmt.Errorf("%w: %d conflicting attempts", entitlement.ErrStoreUnavailable, s.maxAttempts))
}

// GetEntitlement reports the user's tier and balance after lazy expiry and reset
func (s *EntitlementService) GetEntitlement(ctx context.Context, userID string) (*entitlement.View, error) {
	if userID == "" {
		return nil, unauthenticated()
	}

	now := s.now()
	rec, err := s.resolve(ctx, userID, now)
	if err != nil {
		return nil, s.storeError(err)
	}

	view := &entitlement.View{
		UserID:                rec.UserID,
		Tier:                  rec.Tier,
		DailyCreditsRemaining: rec.DailyCredits,
		DailyAllowance:        s.policy.Allowance,
		LastResetDate:         rec.LastResetDate,
		ProExpiresAt:          rec.ProExpiresAt,
	}
	if rec.HasActivePaid(now) {
		view.DailyCreditsRemaining = entitlement.Unlimited
		view.Unlimited = true
	}
	return view, nil
}

// RedeemCode upgrades the user when code is on the allow-list
func (s *EntitlementService) RedeemCode(ctx context.Context, userID, code string) (*entitlement.RedeemResult, error) {
	if userID == "" {
		return nil, unauthenticated()
	}

	promo, ok := s.codes.Lookup(code)
	if !ok {
		metrics.RecordRedemption("invalid")
		s.logger.With("user_id", userID).Info("Rejected invalid promo code")
		return &entitlement.RedeemResult{OK: false, Reason: entitlement.ReasonInvalidCode}, nil
	}

	now := s.now()
	rec, err := s.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, entitlement.ErrNotFound) {
		return nil, s.storeError(err)
	}

	// an active grant is only replaced by a permanent code, and a lifetime
	// promo grant is never replaced at all
	if rec != nil && rec.HasActivePaid(now) && (!promo.Permanent() || (rec.IsPermanentPaid() && !rec.IsPaymentBacked())) {
		metrics.RecordRedemption("already_paid")
		return &entitlement.RedeemResult{OK: true, Tier: rec.Tier, ProExpiresAt: rec.ProExpiresAt}, nil
	}

	var expiry *time.Time
	if !promo.Permanent() {
		t := now.Add(promo.Duration).UTC()
		expiry = &t
	}

	rec, claimed, err := s.store.ClaimCode(ctx, userID, promo.Code, expiry)
	if err != nil {
		return nil, s.storeError(err)
	}
	if !claimed {
		metrics.RecordRedemption("already_redeemed")
		s.logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"code":    promo.Code,
		}).Info("Promo code already redeemed by user")
		// a lapsed grant reads as free until the next consume persists it
		if rec == nil || !rec.HasActivePaid(now) {
			return &entitlement.RedeemResult{OK: true, Tier: entitlement.TierFree}, nil
		}
		return &entitlement.RedeemResult{OK: true, Tier: rec.Tier, ProExpiresAt: rec.ProExpiresAt}, nil
	}

	metrics.RecordRedemption("upgraded")
	metrics.RecordTierChange(string(entitlement.TierPaid), "promo_code")
	s.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"code":      promo.Code,
		"permanent": promo.Permanent(),
	}).Info("Promo code redeemed")

	return &entitlement.RedeemResult{OK: true, Tier: rec.Tier, ProExpiresAt: rec.ProExpiresAt}, nil
}

// NotifyPaymentConfirmed marks the user paid with no expiry
func (s *EntitlementService) NotifyPaymentConfirmed(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.BadRequest("User ID is required")
	}

	rec, err := s.store.Get(ctx, userID)
	if err != nil && !errors.Is(err, entitlement.ErrNotFound) {
		return s.storeError(err)
	}
	if rec != nil && rec.IsPermanentPaid() {
		return nil
	}

	if _, err := s.store.UpsertTierAndExpiry(ctx, userID, entitlement.TierPaid, nil, entitlement.PaidSourcePayment); err != nil {
		return s.storeError(err)
	}

	metrics.RecordTierChange(string(entitlement.TierPaid), "payment")
	s.logger.With("user_id", userID).Info("Payment confirmed, user upgraded")
	return nil
}

// NotifySubscriptionCancelled returns a subscriber to the free tier. Paid
// tiers granted by a promo code were not granted by the payment processor
// and are kept.
func (s *EntitlementService) NotifySubscriptionCancelled(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.BadRequest("User ID is required")
	}

	changed, err := s.store.CancelSubscription(ctx, userID)
	if err != nil {
		return s.storeError(err)
	}
	if !changed {
		s.logger.With("user_id", userID).Debug("Cancellation left entitlement unchanged")
		return nil
	}

	metrics.RecordTierChange(string(entitlement.TierFree), "cancellation")
	s.logger.With("user_id", userID).Info("Subscription cancelled, user downgraded")
	return nil
}

// ListEvents returns a page of the user's audited consume decisions
func (s *EntitlementService) ListEvents(ctx context.Context, userID string, limit, offset int) ([]*entitlement.Event, int64, error) {
	if userID == "" {
		return nil, 0, unauthenticated()
	}
	if s.audit == nil {
		return []*entitlement.Event{}, 0, nil
	}

	if limit < 1 {
		limit = defaultEventsPageSize
	}
	if limit > maxEventsPageSize {
		limit = maxEventsPageSize
	}
	if offset < 0 {
		offset = 0
	}

	events, total, err := s.audit.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, s.storeError(err)
	}
	return events, total, nil
}

// resolve loads the record and applies lazy expiry and the daily reset.
// The returned record always reflects what is stored.
func (s *EntitlementService) resolve(ctx context.Context, userID string, now time.Time) (*entitlement.Record, error) {
	rec, err := s.store.Get(ctx, userID)
	if errors.Is(err, entitlement.ErrNotFound) {
		rec, err = s.store.Materialize(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	if rec.IsExpired(now) {
		if err := s.store.ExpireTier(ctx, userID, now); err != nil {
			return nil, err
		}
		metrics.RecordTierChange(string(entitlement.TierFree), "expiry")
		s.logger.With("user_id", userID).Info("Paid tier expired, user downgraded")

		if rec, err = s.store.Get(ctx, userID); err != nil {
			return nil, err
		}
	}

	if rec.HasActivePaid(now) {
		return rec, nil
	}

	credits, resetDate, due := s.policy.Refill(rec, now)
	if !due {
		return rec, nil
	}
	if err := s.store.Refill(ctx, userID, credits, resetDate); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, userID)
}

func (s *EntitlementService) recordEvent(ctx context.Context, userID string, action entitlement.ActionType, outcome entitlement.Outcome, remaining int, now time.Time) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, &entitlement.Event{
		UserID:           userID,
		ActionType:       action,
		Outcome:          outcome,
		CreditsRemaining: remaining,
		OccurredAt:       now.UTC(),
	})
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"outcome": string(outcome),
		}).WarnWithErr(err, "Failed to record credit event")
	}
}

// storeError fails closed: anything the store could not answer is reported
// as unavailable, never as a grant.
func (s *EntitlementService) storeError(err error) error {
	s.logger.ErrorWithErr(err, "Entitlement store error")
	if !errors.Is(err, entitlement.ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %w", entitlement.ErrStoreUnavailable, err)
	}
	return apperrors.Unavailable("Entitlement store unavailable", err)
}

func unauthenticated() error {
	return apperrors.Wrap(entitlement.ErrUnauthenticated, apperrors.ErrCodeUnauthorized,
		"Authentication required", http.StatusUnauthorized)
}

var _ entitlement.Service = (*EntitlementService)(nil)
