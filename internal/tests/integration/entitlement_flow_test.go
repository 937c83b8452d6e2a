package integration

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pratik-mahalle/bibleplan/internal/api/handlers"
	"github.com/pratik-mahalle/bibleplan/internal/api/middleware"
	"github.com/pratik-mahalle/bibleplan/internal/api/router"
	"github.com/pratik-mahalle/bibleplan/internal/auth"
	"github.com/pratik-mahalle/bibleplan/internal/config"
	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/validator"
	"github.com/pratik-mahalle/bibleplan/internal/providers"
	"github.com/pratik-mahalle/bibleplan/internal/repository/postgres"
	"github.com/pratik-mahalle/bibleplan/internal/services"
	"github.com/pratik-mahalle/bibleplan/internal/testutil"
	"github.com/pratik-mahalle/bibleplan/pkg/client"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const (
	jwtSecret     = "integration-secret"
	webhookSecret = "whsec_integration"
)

type stack struct {
	server *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db := testutil.NewTestDB(t)
	t.Cleanup(func() { testutil.CleanupDB(db) })
	log := testutil.NewTestLogger()
	val := validator.New()

	store := postgres.NewEntitlementStore(db, "sqlite")
	audit := postgres.NewAuditRepository(db, "sqlite")
	customers := postgres.NewCustomerRepository(db, "sqlite")

	ent := services.NewEntitlementService(store, audit, services.EntitlementOptions{
		Allowance: 5,
		Codes:     []entitlement.PromoCode{{Code: "BBP4LIFE"}},
	}, log)
	bill := services.NewBillingService(
		providers.NewStripeProvider(config.BillingConfig{StripeWebhookSecret: webhookSecret}),
		customers, ent, log)
	chat := services.NewChatService(ent, &testutil.MockCompleter{Content: "Grace and peace."}, "", log)

	cfg := &config.Config{Server: config.ServerConfig{FrontendURL: "http://localhost:5173"}}
	h := router.New(cfg, log, auth.NewHMACVerifier(jwtSecret), router.Limiters{
		IP:   middleware.NewRateLimiter(1000, 1000),
		User: middleware.NewRateLimiter(1000, 1000),
	}, &router.Handlers{
		Health:      handlers.NewHealthHandler(db, "test", log),
		Entitlement: handlers.NewEntitlementHandler(ent, ent.Actions(), log, val),
		Billing:     handlers.NewBillingHandler(bill, log),
		Chat:        handlers.NewChatHandler(chat, log, val),
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &stack{server: srv}
}

func (s *stack) clientFor(t *testing.T, userID string) *client.Client {
	t.Helper()
	token, err := auth.MintToken(userID, userID+"@example.com", jwtSecret, time.Hour)
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}
	return client.NewClient(client.Config{BaseURL: s.server.URL, Token: token})
}

func (s *stack) sendWebhook(t *testing.T, payload string) int {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/api/v1/billing/webhook", bytes.NewReader(signed.Payload))
	if err != nil {
		t.Fatalf("build webhook request: %v", err)
	}
	req.Header.Set("Stripe-Signature", signed.Header)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook request failed: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestEntitlementFlow_FreeToPaidAndBack(t *testing.T) {
	s := newStack(t)
	c := s.clientFor(t, "user-ruth")
	ctx := context.Background()

	ent, err := c.Entitlement().Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ent.Tier != "free" || ent.DailyCreditsRemaining != 5 {
		t.Fatalf("new user = %+v, want free with 5 credits", ent)
	}

	for i := 4; i >= 0; i-- {
		res, err := c.Entitlement().Consume(ctx, "chapter_notes_viewed")
		if err != nil {
			t.Fatalf("Consume() error = %v", err)
		}
		if !res.OK || res.DailyCreditsRemaining != i {
			t.Fatalf("consume = %+v, want ok with %d left", res, i)
		}
	}

	res, err := c.Entitlement().Consume(ctx, "trivia_started")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if res.OK || res.Reason != "no_credits" {
		t.Fatalf("sixth consume = %+v, want no_credits", res)
	}

	_, err = c.Chat().Reply(ctx, []client.ChatMessage{{Role: "user", Content: "Who was Ruth?"}})
	if apiErr, ok := client.AsAPIError(err); !ok || !apiErr.IsNoCredits() {
		t.Fatalf("chat error = %v, want NO_CREDITS", err)
	}

	checkout := `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":` +
		`{"id":"cs_1","customer":"cus_ruth","subscription":"sub_1","client_reference_id":"user-ruth","payment_status":"paid"}}}`
	if status := s.sendWebhook(t, checkout); status != http.StatusOK {
		t.Fatalf("checkout webhook status = %d, want 200", status)
	}
	// redelivery is harmless
	if status := s.sendWebhook(t, checkout); status != http.StatusOK {
		t.Fatalf("redelivered webhook status = %d, want 200", status)
	}

	res, err = c.Entitlement().Consume(ctx, "trivia_started")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !res.OK || !res.Unlimited || res.DailyCreditsRemaining != client.Unlimited {
		t.Fatalf("paid consume = %+v, want unlimited", res)
	}

	reply, err := c.Chat().Reply(ctx, []client.ChatMessage{{Role: "user", Content: "Who was Ruth?"}})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply.Message.Content != "Grace and peace." {
		t.Errorf("reply = %q", reply.Message.Content)
	}

	cancel := `{"id":"evt_2","object":"event","type":"customer.subscription.deleted","data":{"object":` +
		`{"id":"sub_1","customer":"cus_ruth","status":"canceled"}}}`
	if status := s.sendWebhook(t, cancel); status != http.StatusOK {
		t.Fatalf("cancel webhook status = %d, want 200", status)
	}

	ent, err = c.Entitlement().Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// the day's allowance was already spent before the upgrade
	if ent.Tier != "free" || ent.DailyCreditsRemaining != 0 {
		t.Errorf("after cancel = %+v, want free with 0 credits", ent)
	}

	events, err := c.Entitlement().Events(ctx, &client.ListOptions{PageSize: 100})
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	// five spends, two denials (one from chat), two unlimited passes
	if events.TotalItems != 9 {
		t.Errorf("events total = %d, want 9", events.TotalItems)
	}
	if len(events.Data) != 9 {
		t.Errorf("events page len = %d, want 9", len(events.Data))
	}
}

func TestEntitlementFlow_RedeemCode(t *testing.T) {
	s := newStack(t)
	c := s.clientFor(t, "user-boaz")
	ctx := context.Background()

	_, err := c.Entitlement().Redeem(ctx, "FREEBIE")
	if apiErr, ok := client.AsAPIError(err); !ok || !apiErr.IsInvalidCode() {
		t.Fatalf("Redeem(FREEBIE) error = %v, want INVALID_CODE", err)
	}

	red, err := c.Entitlement().Redeem(ctx, "bbp4life")
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if !red.OK || red.Tier != "paid" || red.ProExpiresAt != nil {
		t.Errorf("redeem = %+v, want permanent paid", red)
	}

	// a subscription bought and cancelled on top of the lifetime code
	checkout := `{"id":"evt_b1","object":"event","type":"checkout.session.completed","data":{"object":` +
		`{"id":"cs_b1","customer":"cus_boaz","subscription":"sub_b1","client_reference_id":"user-boaz","payment_status":"paid"}}}`
	if status := s.sendWebhook(t, checkout); status != http.StatusOK {
		t.Fatalf("checkout webhook status = %d, want 200", status)
	}
	cancel := `{"id":"evt_b2","object":"event","type":"customer.subscription.deleted","data":{"object":` +
		`{"id":"sub_b1","customer":"cus_boaz","status":"canceled"}}}`
	if status := s.sendWebhook(t, cancel); status != http.StatusOK {
		t.Fatalf("cancel webhook status = %d, want 200", status)
	}

	ent, err := c.Entitlement().Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ent.Unlimited || ent.Tier != "paid" {
		t.Errorf("entitlement = %+v, want lifetime grant kept", ent)
	}
}

func TestEntitlementFlow_ConcurrentConsumes(t *testing.T) {
	s := newStack(t)
	c := s.clientFor(t, "user-naomi")
	ctx := context.Background()

	if _, err := c.Entitlement().Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	const callers = 12
	results := make(chan *client.ConsumeResult, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			res, err := c.Entitlement().Consume(ctx, "devotional_day_viewed")
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}

	granted, denied, failed := 0, 0, 0
	for i := 0; i < callers; i++ {
		select {
		case res := <-results:
			if res.OK {
				granted++
			} else {
				denied++
			}
		case err := <-errs:
			// contention may exhaust the retry budget; that must deny, not grant
			apiErr, ok := client.AsAPIError(err)
			if !ok || apiErr.StatusCode != http.StatusServiceUnavailable {
				t.Errorf("unexpected error: %v", err)
			}
			failed++
		}
	}

	if granted > 5 {
		t.Fatalf("granted %d consumes with an allowance of 5", granted)
	}

	ent, err := c.Entitlement().Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if granted+ent.DailyCreditsRemaining != 5 {
		t.Errorf("granted %d + remaining %d != 5 (denied %d, failed %d)",
			granted, ent.DailyCreditsRemaining, denied, failed)
	}
}
