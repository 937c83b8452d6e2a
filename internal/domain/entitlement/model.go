package entitlement

import (
	"strings"
	"time"
)

// Tier is a user's entitlement class
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// IsValid reports whether t is a known tier
func (t Tier) IsValid() bool {
	return t == TierFree || t == TierPaid
}

// PaidSource records which upgrade path granted a paid tier. Only a
// payment-backed grant can be revoked by the payment processor.
type PaidSource string

const (
	PaidSourceNone    PaidSource = ""
	PaidSourcePromo   PaidSource = "promo"
	PaidSourcePayment PaidSource = "payment"
)

// Unlimited is reported as the remaining balance for paid users
const Unlimited = -1

// Record is the persisted entitlement state of a single user
type Record struct {
	UserID        string     `json:"user_id"`
	Tier          Tier       `json:"tier"`
	DailyCredits  int        `json:"daily_credits"`
	LastResetDate *time.Time `json:"last_reset_date,omitempty"`
	ProExpiresAt  *time.Time `json:"pro_expires_at,omitempty"`
	PaidSource    PaidSource `json:"paid_source,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasActivePaid reports whether the record bypasses quota checks at now
func (r *Record) HasActivePaid(now time.Time) bool {
	if r.Tier != TierPaid {
		return false
	}
	return r.ProExpiresAt == nil || r.ProExpiresAt.After(now)
}

// IsExpired reports whether a time-boxed paid tier has lapsed at now
func (r *Record) IsExpired(now time.Time) bool {
	return r.Tier == TierPaid && r.ProExpiresAt != nil && !r.ProExpiresAt.After(now)
}

// IsPermanentPaid reports whether the record is paid with no expiry
func (r *Record) IsPermanentPaid() bool {
	return r.Tier == TierPaid && r.ProExpiresAt == nil
}

// IsPaymentBacked reports whether the paid tier came from a subscription
func (r *Record) IsPaymentBacked() bool {
	return r.Tier == TierPaid && r.PaidSource == PaidSourcePayment
}

// ActionType labels the feature that spent a credit. It is recorded for
// auditing only and never changes the quota math.
type ActionType string

const (
	ActionChapterNotesViewed  ActionType = "chapter_notes_viewed"
	ActionTriviaStarted       ActionType = "trivia_started"
	ActionDevotionalDayViewed ActionType = "devotional_day_viewed"
	ActionAIChatReply         ActionType = "ai_chat_reply"
)

// DefaultActionTypes is used when no action types are configured
var DefaultActionTypes = []ActionType{
	ActionChapterNotesViewed,
	ActionTriviaStarted,
	ActionDevotionalDayViewed,
	ActionAIChatReply,
}

// ActionSet is the closed set of action types a deployment accepts
type ActionSet struct {
	known map[ActionType]struct{}
	order []ActionType
}

// NewActionSet builds a set from the given labels, ignoring blanks and duplicates
func NewActionSet(actions ...ActionType) ActionSet {
	s := ActionSet{known: make(map[ActionType]struct{}, len(actions))}
	for _, a := range actions {
		a = ActionType(strings.TrimSpace(string(a)))
		if a == "" {
			continue
		}
		if _, dup := s.known[a]; dup {
			continue
		}
		s.known[a] = struct{}{}
		s.order = append(s.order, a)
	}
	return s
}

// Contains reports whether a is a recognised action type
func (s ActionSet) Contains(a ActionType) bool {
	_, ok := s.known[a]
	return ok
}

// List returns the action types in configuration order
func (s ActionSet) List() []ActionType {
	out := make([]ActionType, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of action types in the set
func (s ActionSet) Len() int {
	return len(s.order)
}

// Reason explains a benign denial
type Reason string

const (
	ReasonNoCredits   Reason = "no_credits"
	ReasonInvalidCode Reason = "invalid_code"
)

// ConsumeResult is the outcome of spending one credit
type ConsumeResult struct {
	OK                    bool   `json:"ok"`
	DailyCreditsRemaining int    `json:"daily_credits_remaining"`
	Unlimited             bool   `json:"unlimited"`
	Reason                Reason `json:"reason,omitempty"`
}

// View is the read-only projection shown to users
type View struct {
	UserID                string     `json:"user_id"`
	Tier                  Tier       `json:"tier"`
	DailyCreditsRemaining int        `json:"daily_credits_remaining"`
	DailyAllowance        int        `json:"daily_allowance"`
	Unlimited             bool       `json:"unlimited"`
	LastResetDate         *time.Time `json:"last_reset_date,omitempty"`
	ProExpiresAt          *time.Time `json:"pro_expires_at,omitempty"`
}

// RedeemResult is the outcome of a code redemption
type RedeemResult struct {
	OK           bool       `json:"ok"`
	Reason       Reason     `json:"reason,omitempty"`
	Tier         Tier       `json:"tier,omitempty"`
	ProExpiresAt *time.Time `json:"pro_expires_at,omitempty"`
}

// Outcome of a consume decision as written to the audit log
type Outcome string

const (
	OutcomeConsumed  Outcome = "consumed"
	OutcomeUnlimited Outcome = "unlimited"
	OutcomeNoCredits Outcome = "no_credits"
)

// Event is one audited consume decision
type Event struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	ActionType       ActionType `json:"action_type"`
	Outcome          Outcome    `json:"outcome"`
	CreditsRemaining int        `json:"credits_remaining"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

// UsageCount is the number of decisions for one action and outcome on a day
type UsageCount struct {
	Day        time.Time  `json:"day"`
	ActionType ActionType `json:"action_type"`
	Outcome    Outcome    `json:"outcome"`
	Count      int64      `json:"count"`
}
