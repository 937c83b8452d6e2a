package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Token: "tok"})
}

func writeEnvelope(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{"success": status < 400, "data": data})
}

func TestEntitlement_Consume(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/entitlement/consume", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "trivia_started", body["action_type"])

		writeEnvelope(w, http.StatusOK, map[string]interface{}{"ok": false, "daily_credits_remaining": 0, "reason": "no_credits"})
	})

	res, err := c.Entitlement().Consume(context.Background(), "trivia_started")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "no_credits", res.Reason)
}

func TestEntitlement_Get(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/entitlement", r.URL.Path)
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"tier": "paid", "daily_credits_remaining": Unlimited, "unlimited": true, "daily_allowance": 5,
		})
	})

	ent, err := c.Entitlement().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "paid", ent.Tier)
	assert.True(t, ent.Unlimited)
	assert.Equal(t, Unlimited, ent.DailyCreditsRemaining)
}

func TestEntitlement_RedeemInvalidCode(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"success":false,"error":{"code":"INVALID_CODE","message":"Code is not valid"}}`))
	})

	_, err := c.Entitlement().Redeem(context.Background(), "nope")
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.True(t, apiErr.IsInvalidCode())
	assert.False(t, apiErr.IsServerError())
}

func TestEntitlement_Events(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("page_size"))
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": "e1", "action_type": "ai_chat_reply", "outcome": "consumed", "credits_remaining": 3},
			},
			"page": 2, "page_size": 10, "total_items": 11, "total_pages": 2,
		})
	})

	page, err := c.Entitlement().Events(context.Background(), &ListOptions{Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "consumed", page.Data[0].Outcome)
	assert.EqualValues(t, 11, page.TotalItems)
}

func TestChat_NoCredits(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"success":false,"error":{"code":"NO_CREDITS","message":"No credits left today"}}`))
	})

	_, err := c.Chat().Reply(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsNoCredits())
}

func TestDoRequest_NonJSONError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	err := c.Ping(context.Background())
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, "bad gateway", apiErr.Message)
}
