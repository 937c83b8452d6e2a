package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// EntitlementService handles credit and tier API calls
type EntitlementService struct {
	client *Client
}

// Get returns the caller's current tier and balance
func (s *EntitlementService) Get(ctx context.Context) (*Entitlement, error) {
	var out Entitlement
	if err := s.client.doRequest(ctx, http.MethodGet, "/api/v1/entitlement", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Consume spends one credit for actionType. Running out of credits is not
// an error: check ConsumeResult.OK.
func (s *EntitlementService) Consume(ctx context.Context, actionType string) (*ConsumeResult, error) {
	var out ConsumeResult
	body := map[string]string{"action_type": actionType}
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/entitlement/consume", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Redeem applies a promotional code. A rejected code returns an *APIError
// for which IsInvalidCode is true.
func (s *EntitlementService) Redeem(ctx context.Context, code string) (*RedeemResult, error) {
	var out RedeemResult
	body := map[string]string{"code": code}
	if err := s.client.doRequest(ctx, http.MethodPost, "/api/v1/entitlement/redeem", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events lists the caller's consume history, newest first
func (s *EntitlementService) Events(ctx context.Context, opts *ListOptions) (*Page[CreditEvent], error) {
	path := "/api/v1/entitlement/events"
	if opts != nil {
		query := url.Values{}
		if opts.Page > 0 {
			query.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			query.Set("page_size", strconv.Itoa(opts.PageSize))
		}
		if len(query) > 0 {
			path += "?" + query.Encode()
		}
	}

	var out Page[CreditEvent]
	if err := s.client.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
