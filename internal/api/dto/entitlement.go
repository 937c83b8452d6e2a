package dto

import (
	"time"

	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
)

// ConsumeRequest spends one credit for an action
type ConsumeRequest struct {
	ActionType string `json:"action_type" validate:"required,max=64"`
}

// RedeemRequest redeems a promotional code
type RedeemRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// EntitlementDTO is the user's current balance and tier
type EntitlementDTO struct {
	Tier                  string     `json:"tier"`
	DailyCreditsRemaining int        `json:"daily_credits_remaining"`
	DailyAllowance        int        `json:"daily_allowance"`
	Unlimited             bool       `json:"unlimited"`
	LastResetDate         string     `json:"last_reset_date,omitempty"`
	ProExpiresAt          *time.Time `json:"pro_expires_at,omitempty"`
	ActionTypes           []string   `json:"action_types,omitempty"`
}

// ConsumeDTO is returned by the consume endpoint. A denied consume is a
// normal response with ok set to false.
type ConsumeDTO struct {
	OK                    bool   `json:"ok"`
	DailyCreditsRemaining int    `json:"daily_credits_remaining"`
	Unlimited             bool   `json:"unlimited"`
	Reason                string `json:"reason,omitempty"`
}

// RedeemDTO is returned after a successful redemption
type RedeemDTO struct {
	OK           bool       `json:"ok"`
	Tier         string     `json:"tier"`
	ProExpiresAt *time.Time `json:"pro_expires_at,omitempty"`
}

// CreditEventDTO is one entry of the consume history
type CreditEventDTO struct {
	ID               string    `json:"id"`
	ActionType       string    `json:"action_type"`
	Outcome          string    `json:"outcome"`
	CreditsRemaining int       `json:"credits_remaining"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func NewEntitlementDTO(v *entitlement.View, actions []entitlement.ActionType) EntitlementDTO {
	out := EntitlementDTO{
		Tier:                  string(v.Tier),
		DailyCreditsRemaining: v.DailyCreditsRemaining,
		DailyAllowance:        v.DailyAllowance,
		Unlimited:             v.Unlimited,
		ProExpiresAt:          v.ProExpiresAt,
	}
	if v.LastResetDate != nil {
		out.LastResetDate = v.LastResetDate.Format(entitlement.DateLayout)
	}
	for _, a := range actions {
		out.ActionTypes = append(out.ActionTypes, string(a))
	}
	return out
}

func NewConsumeDTO(r *entitlement.ConsumeResult) ConsumeDTO {
	return ConsumeDTO{
		OK:                    r.OK,
		DailyCreditsRemaining: r.DailyCreditsRemaining,
		Unlimited:             r.Unlimited,
		Reason:                string(r.Reason),
	}
}

func NewCreditEventDTOs(events []*entitlement.Event) []CreditEventDTO {
	out := make([]CreditEventDTO, len(events))
	for i, e := range events {
		out[i] = CreditEventDTO{
			ID:               e.ID,
			ActionType:       string(e.ActionType),
			Outcome:          string(e.Outcome),
			CreditsRemaining: e.CreditsRemaining,
			OccurredAt:       e.OccurredAt,
		}
	}
	return out
}
