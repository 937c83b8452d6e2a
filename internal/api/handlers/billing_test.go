package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pratik-mahalle/bibleplan/internal/api/middleware"
	"github.com/pratik-mahalle/bibleplan/internal/domain/billing"
	"github.com/pratik-mahalle/bibleplan/internal/services"
	"github.com/pratik-mahalle/bibleplan/internal/testutil"
)

func newBillingHandler(provider *testutil.MockBillingProvider, store *testutil.MockEntitlementStore) *BillingHandler {
	log := testutil.NewTestLogger()
	ent := services.NewEntitlementService(store, nil, services.EntitlementOptions{Allowance: 5}, log)
	svc := services.NewBillingService(provider, testutil.NewMockCustomerStore(), ent, log)
	return NewBillingHandler(svc, log)
}

func TestBillingHandler_Checkout(t *testing.T) {
	provider := &testutil.MockBillingProvider{
		Session: &billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"},
	}
	h := newBillingHandler(provider, testutil.NewMockEntitlementStore())

	rr, env := doRequest(t, h.Checkout, http.MethodPost, "/api/v1/billing/checkout", "user-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if !strings.Contains(string(env.Data), "cs_test_1") {
		t.Errorf("data = %s, want session id", env.Data)
	}
	if len(provider.Customers) != 1 || provider.Customers[0] != (billing.Customer{UserID: "user-1"}) {
		t.Errorf("checkout customers = %v, want [{user-1 }]", provider.Customers)
	}
}

func TestBillingHandler_CheckoutPassesTokenEmail(t *testing.T) {
	provider := &testutil.MockBillingProvider{
		Session: &billing.CheckoutSession{ID: "cs_test_2", URL: "https://checkout.stripe.com/c/pay/cs_test_2"},
	}
	h := newBillingHandler(provider, testutil.NewMockEntitlementStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", nil)
	ctx := middleware.WithUserID(req.Context(), "user-2")
	req = req.WithContext(middleware.WithUserEmail(ctx, "priscilla@example.com"))
	rr := httptest.NewRecorder()

	h.Checkout(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	want := billing.Customer{UserID: "user-2", Email: "priscilla@example.com"}
	if len(provider.Customers) != 1 || provider.Customers[0] != want {
		t.Errorf("checkout customers = %v, want [%v]", provider.Customers, want)
	}
}

func TestBillingHandler_Webhook(t *testing.T) {
	event := &billing.WebhookEvent{
		ID:            "evt_1",
		Type:          billing.EventCheckoutCompleted,
		CustomerID:    "cus_1",
		UserID:        "user-1",
		PaymentStatus: "paid",
	}

	tests := []struct {
		name       string
		signature  string
		wantStatus int
		wantPaid   bool
	}{
		{"valid signature upgrades", "t=1,v1=good", http.StatusOK, true},
		{"bad signature", "t=1,v1=bad", http.StatusBadRequest, false},
		{"missing signature", "", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockEntitlementStore()
			provider := &testutil.MockBillingProvider{ValidSignature: "t=1,v1=good", Event: event}
			h := newBillingHandler(provider, store)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(`{"id":"evt_1"}`))
			if tt.signature != "" {
				req.Header.Set("Stripe-Signature", tt.signature)
			}
			rr := httptest.NewRecorder()
			h.Webhook(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			rec := store.Snapshot("user-1")
			paid := rec != nil && rec.IsPermanentPaid()
			if paid != tt.wantPaid {
				t.Errorf("paid = %v, want %v", paid, tt.wantPaid)
			}
		})
	}
}

func TestBillingHandler_WebhookTooLarge(t *testing.T) {
	h := newBillingHandler(&testutil.MockBillingProvider{ValidSignature: "sig"}, testutil.NewMockEntitlementStore())

	body := strings.Repeat("a", maxWebhookBody+1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "sig")
	rr := httptest.NewRecorder()
	h.Webhook(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rr.Code)
	}
}
