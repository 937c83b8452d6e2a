package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
	apperrors "github.com/pratik-mahalle/bibleplan/internal/pkg/errors"
	"github.com/pratik-mahalle/bibleplan/internal/testutil"
	"golang.org/x/sync/errgroup"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEntitlementService(store entitlement.Store, audit entitlement.AuditLog, clock *fakeClock) *EntitlementService {
	return NewEntitlementService(store, audit, EntitlementOptions{
		Allowance: 5,
		Actions:   []entitlement.ActionType{"x", entitlement.ActionTriviaStarted, entitlement.ActionAIChatReply},
		Codes: []entitlement.PromoCode{
			{Code: "BBP4LIFE"},
			{Code: "TRIAL30", Duration: 30 * 24 * time.Hour},
		},
		MaxAttempts: 3,
		Now:         clock.Now,
	}, testutil.NewTestLogger())
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	appErr, ok := apperrors.As(err)
	if !ok {
		t.Fatalf("error = %v, want *AppError", err)
	}
	if appErr.StatusCode != status {
		t.Errorf("StatusCode = %d, want %d", appErr.StatusCode, status)
	}
}

func TestEntitlementService_DailyAllowance(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	clock := newFakeClock()
	svc := newTestEntitlementService(store, nil, clock)
	ctx := context.Background()

	for _, want := range []int{4, 3, 2, 1, 0} {
		res, err := svc.Consume(ctx, "u1", "x")
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
		if !res.OK || res.DailyCreditsRemaining != want {
			t.Fatalf("Consume() = %+v, want ok with %d remaining", res, want)
		}
	}

	res, err := svc.Consume(ctx, "u1", "x")
	if err != nil {
		t.Fatalf("sixth Consume() error = %v, want nil", err)
	}
	if res.OK || res.Reason != entitlement.ReasonNoCredits {
		t.Errorf("sixth Consume() = %+v, want no_credits", res)
	}

	// next UTC day refills to the allowance, then spends one
	clock.Advance(24 * time.Hour)
	res, err = svc.Consume(ctx, "u1", "x")
	if err != nil {
		t.Fatalf("next day Consume() error = %v", err)
	}
	if !res.OK || res.DailyCreditsRemaining != 4 {
		t.Errorf("next day Consume() = %+v, want ok with 4 remaining", res)
	}
}

func TestEntitlementService_RedeemLifetimeCode(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	clock := newFakeClock()
	svc := newTestEntitlementService(store, nil, clock)
	ctx := context.Background()

	if _, err := svc.Consume(ctx, "u1", "x"); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	res, err := svc.RedeemCode(ctx, "u1", " bbp4life ")
	if err != nil {
		t.Fatalf("RedeemCode() error = %v", err)
	}
	if !res.OK || res.Tier != entitlement.TierPaid || res.ProExpiresAt != nil {
		t.Fatalf("RedeemCode() = %+v, want permanent paid", res)
	}

	decrements := store.DecrementCalls
	for i := 0; i < 10; i++ {
		res, err := svc.Consume(ctx, "u1", "x")
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
		if !res.OK || !res.Unlimited || res.DailyCreditsRemaining != entitlement.Unlimited {
			t.Fatalf("Consume() = %+v, want unlimited", res)
		}
	}

	if store.DecrementCalls != decrements {
		t.Errorf("paid consumes issued %d decrements, want none", store.DecrementCalls-decrements)
	}
	if got := store.Snapshot("u1").DailyCredits; got != 4 {
		t.Errorf("stored credits = %d, want 4 untouched", got)
	}
}

func TestEntitlementService_RedeemInvalidCode(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	svc := newTestEntitlementService(store, nil, newFakeClock())
	ctx := context.Background()

	res, err := svc.RedeemCode(ctx, "u1", "NOPE")
	if err != nil {
		t.Fatalf("RedeemCode() error = %v", err)
	}
	if res.OK || res.Reason != entitlement.ReasonInvalidCode {
		t.Errorf("RedeemCode() = %+v, want invalid_code", res)
	}
	if store.Calls != 0 {
		t.Errorf("store calls = %d, want 0", store.Calls)
	}
	if store.Snapshot("u1") != nil {
		t.Error("invalid code created a record")
	}
}

func TestEntitlementService_LazyExpiry(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	clock := newFakeClock()
	svc := newTestEntitlementService(store, nil, clock)
	ctx := context.Background()

	yesterday := clock.Now().Add(-24 * time.Hour)
	lastReset := entitlement.Day(yesterday)
	store.Put(&entitlement.Record{
		UserID:        "u1",
		Tier:          entitlement.TierPaid,
		DailyCredits:  0,
		LastResetDate: &lastReset,
		ProExpiresAt:  &yesterday,
	})

	view, err := svc.GetEntitlement(ctx, "u1")
	if err != nil {
		t.Fatalf("GetEntitlement() error = %v", err)
	}
	if view.Tier != entitlement.TierFree || view.Unlimited {
		t.Errorf("GetEntitlement() = %+v, want free tier", view)
	}
	if view.DailyCreditsRemaining != 5 {
		t.Errorf("DailyCreditsRemaining = %d, want 5 after refill", view.DailyCreditsRemaining)
	}

	stored := store.Snapshot("u1")
	if stored.Tier != entitlement.TierFree || stored.ProExpiresAt != nil {
		t.Errorf("stored = %+v, want persisted downgrade", stored)
	}
}

func TestEntitlementService_ExpiredUserCanConsume(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	clock := newFakeClock()
	svc := newTestEntitlementService(store, nil, clock)

	expired := clock.Now().Add(-time.Minute)
	store.Put(&entitlement.Record{UserID: "u1", Tier: entitlement.TierPaid, ProExpiresAt: &expired})

	res, err := svc.Consume(context.Background(), "u1", "x")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !res.OK || res.Unlimited || res.DailyCreditsRemaining != 4 {
		t.Errorf("Consume() = %+v, want metered consume with 4 remaining", res)
	}
	if store.Snapshot("u1").Tier != entitlement.TierFree {
		t.Error("expiry was not persisted")
	}
}

func TestEntitlementService_ConsumeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		action  entitlement.ActionType
		status  int
		wantErr error
	}{
		{"missing user", "", "x", http.StatusUnauthorized, entitlement.ErrUnauthenticated},
		{"unknown action", "u1", "read_minds", http.StatusBadRequest, entitlement.ErrUnknownAction},
		{"empty action", "u1", "", http.StatusBadRequest, entitlement.ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockEntitlementStore()
			svc := newTestEntitlementService(store, nil, newFakeClock())

			res, err := svc.Consume(context.Background(), tt.userID, tt.action)
			if res != nil {
				t.Errorf("Consume() result = %+v, want nil", res)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Consume() error = %v, want %v", err, tt.wantErr)
			}
			wantStatus(t, err, tt.status)
			if store.Calls != 0 {
				t.Errorf("store calls = %d, want 0", store.Calls)
			}
		})
	}
}

func TestEntitlementService_ConsumeRetriesConflicts(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	store.ConflictsToInject = 2
	svc := newTestEntitlementService(store, nil, newFakeClock())

	res, err := svc.Consume(context.Background(), "u1", "x")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !res.OK || res.DailyCreditsRemaining != 4 {
		t.Errorf("Consume() = %+v, want ok with 4 remaining", res)
	}
	if store.DecrementCalls != 3 {
		t.Errorf("DecrementCalls = %d, want 3", store.DecrementCalls)
	}
}

func TestEntitlementService_ConsumeGivesUpAfterMaxAttempts(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	store.ConflictsToInject = 3
	svc := newTestEntitlementService(store, nil, newFakeClock())

	res, err := svc.Consume(context.Background(), "u1", "x")
	if res != nil {
		t.Errorf("Consume() result = %+v, want nil", res)
	}
	if !errors.Is(err, entitlement.ErrStoreUnavailable) {
		t.Fatalf("Consume() error = %v, want ErrStoreUnavailable", err)
	}
	wantStatus(t, err, http.StatusServiceUnavailable)
	if got := store.Snapshot("u1").DailyCredits; got != 5 {
		t.Errorf("stored credits = %d, want 5", got)
	}
}

func TestEntitlementService_FailsClosed(t *testing.T) {
	storeDown := errors.New("connection refused")

	tests := []struct {
		name   string
		mutate func(s *testutil.MockEntitlementStore)
	}{
		{"get fails", func(s *testutil.MockEntitlementStore) { s.GetError = storeDown }},
		{"materialize fails", func(s *testutil.MockEntitlementStore) { s.MaterializeError = storeDown }},
		{"refill fails", func(s *testutil.MockEntitlementStore) { s.RefillError = storeDown }},
		{"decrement fails", func(s *testutil.MockEntitlementStore) { s.DecrementError = storeDown }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockEntitlementStore()
			tt.mutate(store)
			svc := newTestEntitlementService(store, nil, newFakeClock())

			res, err := svc.Consume(context.Background(), "u1", "x")
			if res != nil {
				t.Errorf("Consume() result = %+v, want nil", res)
			}
			if !errors.Is(err, entitlement.ErrStoreUnavailable) {
				t.Fatalf("Consume() error = %v, want ErrStoreUnavailable", err)
			}
			if !errors.Is(err, storeDown) {
				t.Errorf("Consume() error = %v, want cause preserved", err)
			}
			wantStatus(t, err, http.StatusServiceUnavailable)
		})
	}
}

func TestEntitlementService_ConcurrentConsumeNeverOverspends(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	clock := newFakeClock()
	svc := NewEntitlementService(store, nil, EntitlementOptions{
		Allowance:   5,
		Actions:     []entitlement.ActionType{"x"},
		MaxAttempts: 50,
		Now:         clock.Now,
	}, testutil.NewTestLogger())
	ctx := context.Background()

	var granted, denied atomic.Int64
	var g errgroup.Group
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			res, err := svc.Consume(ctx, "u1", "x")
			if errors.Is(err, entitlement.ErrStoreUnavailable) {
				return nil
			}
			if err != nil {
				return err
			}
			if res.OK {
				granted.Add(1)
			} else {
				denied.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	remaining := store.Snapshot("u1").DailyCredits
	if granted.Load() > 5 {
		t.Errorf("granted = %d, want at most 5", granted.Load())
	}
	if granted.Load()+int64(remaining) != 5 {
		t.Errorf("granted %d + remaining %d != allowance 5", granted.Load(), remaining)
	}
	if remaining < 0 {
		t.Errorf("remaining = %d, want non-negative", remaining)
	}
}

func TestEntitlementService_ResetIsIdempotentWithinDay(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	clock := newFakeClock()
	svc := newTestEntitlementService(store, nil, clock)
	ctx := context.Background()

	if _, err := svc.GetEntitlement(ctx, "u1"); err != nil {
		t.Fatalf("GetEntitlement() error = %v", err)
	}
	if _, err := svc.Consume(ctx, "u1", "x"); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	clock.Advance(10 * time.Hour)
	view, err := svc.GetEntitlement(ctx, "u1")
	if err != nil {
		t.Fatalf("GetEntitlement() error = %v", err)
	}
	if view.DailyCreditsRemaining != 4 {
		t.Errorf("DailyCreditsRemaining = %d, want 4", view.DailyCreditsRemaining)
	}
	if store.RefillCalls != 1 {
		t.Errorf("RefillCalls = %d, want 1", store.RefillCalls)
	}
}

func TestEntitlementService_ResetDateAheadOfClock(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	clock := newFakeClock()
	svc := newTestEntitlementService(store, nil, clock)

	ahead := entitlement.Day(clock.Now()).AddDate(0, 0, 2)
	store.Put(&entitlement.Record{UserID: "u1", Tier: entitlement.TierFree, DailyCredits: 2, LastResetDate: &ahead})

	res, err := svc.Consume(context.Background(), "u1", "x")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if res.DailyCreditsRemaining != 1 {
		t.Errorf("DailyCreditsRemaining = %d, want 1 without refill", res.DailyCreditsRemaining)
	}
	stored := store.Snapshot("u1")
	if !stored.LastResetDate.Equal(ahead) {
		t.Errorf("LastResetDate = %v, want %v", stored.LastResetDate, ahead)
	}
	if store.RefillCalls != 0 {
		t.Errorf("RefillCalls = %d, want 0", store.RefillCalls)
	}
}

func TestEntitlementService_UpgradesAreIdempotent(t *testing.T) {
	ctx := context.Background()

	t.Run("lifetime code twice", func(t *testing.T) {
		store := testutil.NewMockEntitlementStore()
		svc := newTestEntitlementService(store, nil, newFakeClock())

		for i := 0; i < 2; i++ {
			res, err := svc.RedeemCode(ctx, "u1", "BBP4LIFE")
			if err != nil || !res.OK {
				t.Fatalf("RedeemCode() = %+v, %v", res, err)
			}
		}
		if store.ClaimCalls != 1 {
			t.Errorf("ClaimCalls = %d, want 1", store.ClaimCalls)
		}
	})

	t.Run("payment confirmed twice", func(t *testing.T) {
		store := testutil.NewMockEntitlementStore()
		svc := newTestEntitlementService(store, nil, newFakeClock())

		for i := 0; i < 2; i++ {
			if err := svc.NotifyPaymentConfirmed(ctx, "u1"); err != nil {
				t.Fatalf("NotifyPaymentConfirmed() error = %v", err)
			}
		}
		if store.UpsertCalls != 1 {
			t.Errorf("UpsertCalls = %d, want 1", store.UpsertCalls)
		}
		if !store.Snapshot("u1").IsPermanentPaid() {
			t.Error("user is not permanent paid")
		}
	})
}

func TestEntitlementService_TimeBoxedCodes(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	clock := newFakeClock()
	svc := newTestEntitlementService(store, nil, clock)
	ctx := context.Background()

	res, err := svc.RedeemCode(ctx, "u1", "trial30")
	if err != nil {
		t.Fatalf("RedeemCode(trial30) error = %v", err)
	}
	wantExpiry := clock.Now().Add(30 * 24 * time.Hour)
	if res.ProExpiresAt == nil || !res.ProExpiresAt.Equal(wantExpiry) {
		t.Fatalf("ProExpiresAt = %v, want %v", res.ProExpiresAt, wantExpiry)
	}

	// a second trial does not extend the first
	clock.Advance(24 * time.Hour)
	res, err = svc.RedeemCode(ctx, "u1", "TRIAL30")
	if err != nil {
		t.Fatalf("second RedeemCode(trial30) error = %v", err)
	}
	if !res.ProExpiresAt.Equal(wantExpiry) {
		t.Errorf("ProExpiresAt = %v, want unchanged %v", res.ProExpiresAt, wantExpiry)
	}

	// a lifetime code replaces the trial
	res, err = svc.RedeemCode(ctx, "u1", "BBP4LIFE")
	if err != nil {
		t.Fatalf("RedeemCode(BBP4LIFE) error = %v", err)
	}
	if res.ProExpiresAt != nil {
		t.Errorf("ProExpiresAt = %v, want nil", res.ProExpiresAt)
	}

	// and a trial never downgrades a lifetime grant
	res, err = svc.RedeemCode(ctx, "u1", "TRIAL30")
	if err != nil {
		t.Fatalf("third RedeemCode(trial30) error = %v", err)
	}
	if !res.OK || res.ProExpiresAt != nil {
		t.Errorf("RedeemCode() = %+v, want permanent paid kept", res)
	}
}

func TestEntitlementService_NotifySubscriptionCancelled(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		seed     *entitlement.Record
		wantTier entitlement.Tier
	}{
		{"subscriber downgraded", &entitlement.Record{UserID: "u1", Tier: entitlement.TierPaid, PaidSource: entitlement.PaidSourcePayment}, entitlement.TierFree},
		{"lifetime code kept", &entitlement.Record{UserID: "u1", Tier: entitlement.TierPaid, PaidSource: entitlement.PaidSourcePromo}, entitlement.TierPaid},
		{"free user untouched", &entitlement.Record{UserID: "u1", Tier: entitlement.TierFree, DailyCredits: 3}, entitlement.TierFree},
		{"unknown user ignored", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockEntitlementStore()
			if tt.seed != nil {
				store.Put(tt.seed)
			}
			svc := newTestEntitlementService(store, nil, newFakeClock())

			if err := svc.NotifySubscriptionCancelled(ctx, "u1"); err != nil {
				t.Fatalf("NotifySubscriptionCancelled() error = %v", err)
			}
			if store.UpsertCalls != 0 {
				t.Errorf("UpsertCalls = %d, want 0", store.UpsertCalls)
			}
			if tt.seed != nil && store.Snapshot("u1").Tier != tt.wantTier {
				t.Errorf("tier = %q, want %q", store.Snapshot("u1").Tier, tt.wantTier)
			}
		})
	}
}

func TestEntitlementService_CancellationKeepsLifetimeCode(t *testing.T) {
	ctx := context.Background()

	sequences := []struct {
		name  string
		steps func(svc *EntitlementService) error
	}{
		{"code then payment", func(svc *EntitlementService) error {
			if _, err := svc.RedeemCode(ctx, "u1", "BBP4LIFE"); err != nil {
				return err
			}
			return svc.NotifyPaymentConfirmed(ctx, "u1")
		}},
		{"payment then code", func(svc *EntitlementService) error {
			if err := svc.NotifyPaymentConfirmed(ctx, "u1"); err != nil {
				return err
			}
			_, err := svc.RedeemCode(ctx, "u1", "BBP4LIFE")
			return err
		}},
	}

	for _, tt := range sequences {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockEntitlementStore()
			svc := newTestEntitlementService(store, nil, newFakeClock())

			if err := tt.steps(svc); err != nil {
				t.Fatalf("setup error = %v", err)
			}
			if err := svc.NotifySubscriptionCancelled(ctx, "u1"); err != nil {
				t.Fatalf("NotifySubscriptionCancelled() error = %v", err)
			}

			res, err := svc.Consume(ctx, "u1", "x")
			if err != nil {
				t.Fatalf("Consume() error = %v", err)
			}
			if !res.OK || !res.Unlimited {
				t.Errorf("Consume() = %+v, want unlimited after cancellation", res)
			}
			if rec := store.Snapshot("u1"); rec.Tier != entitlement.TierPaid || rec.PaidSource != entitlement.PaidSourcePromo {
				t.Errorf("record = %+v, want promo paid", rec)
			}
		})
	}
}

func TestEntitlementService_TimeBoxedCodeRedeemsOnce(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	clock := newFakeClock()
	svc := newTestEntitlementService(store, nil, clock)
	ctx := context.Background()

	if _, err := svc.RedeemCode(ctx, "u1", "TRIAL30"); err != nil {
		t.Fatalf("RedeemCode() error = %v", err)
	}

	clock.Advance(31 * 24 * time.Hour)
	res, err := svc.RedeemCode(ctx, "u1", "TRIAL30")
	if err != nil {
		t.Fatalf("repeat RedeemCode() error = %v", err)
	}
	if !res.OK || res.Tier != entitlement.TierFree || res.ProExpiresAt != nil {
		t.Errorf("repeat RedeemCode() = %+v, want ok no-op on free tier", res)
	}

	consumed, err := svc.Consume(ctx, "u1", "x")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if consumed.Unlimited || consumed.DailyCreditsRemaining != 4 {
		t.Errorf("Consume() = %+v, want metered with 4 left", consumed)
	}

	// another user can still use the code
	other, err := svc.RedeemCode(ctx, "u2", "TRIAL30")
	if err != nil || other.Tier != entitlement.TierPaid {
		t.Errorf("RedeemCode(u2) = %+v, %v, want paid", other, err)
	}
}

func TestEntitlementService_AuditTrail(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	audit := testutil.NewMockAuditLog()
	svc := newTestEntitlementService(store, audit, newFakeClock())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := svc.Consume(ctx, "u1", entitlement.ActionTriviaStarted); err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
	}
	if _, err := svc.RedeemCode(ctx, "u1", "BBP4LIFE"); err != nil {
		t.Fatalf("RedeemCode() error = %v", err)
	}
	if _, err := svc.Consume(ctx, "u1", entitlement.ActionAIChatReply); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	want := []entitlement.Outcome{
		entitlement.OutcomeConsumed, entitlement.OutcomeConsumed, entitlement.OutcomeConsumed,
		entitlement.OutcomeConsumed, entitlement.OutcomeConsumed, entitlement.OutcomeNoCredits,
		entitlement.OutcomeUnlimited,
	}
	got := audit.Outcomes()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("outcomes = %v, want %v", got, want)
	}

	events, total, err := svc.ListEvents(ctx, "u1", 3, 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if total != 7 || len(events) != 3 {
		t.Errorf("ListEvents() = %d events of %d, want 3 of 7", len(events), total)
	}
	if events[0].Outcome != entitlement.OutcomeUnlimited {
		t.Errorf("newest event = %q, want unlimited", events[0].Outcome)
	}
}

func TestEntitlementService_AuditFailureDoesNotChangeResult(t *testing.T) {
	store := testutil.NewMockEntitlementStore()
	audit := testutil.NewMockAuditLog()
	audit.RecordError = errors.New("disk full")
	svc := newTestEntitlementService(store, audit, newFakeClock())

	res, err := svc.Consume(context.Background(), "u1", "x")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !res.OK || res.DailyCreditsRemaining != 4 {
		t.Errorf("Consume() = %+v, want ok with 4 remaining", res)
	}
}
