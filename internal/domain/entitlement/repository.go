package entitlement

import (
	"context"
	"time"
)

// Store defines durable access to entitlement records. Implementations
// return ErrNotFound for missing records and wrap every other failure in
// ErrStoreUnavailable.
type Store interface {
	// Get retrieves the record for a user
	Get(ctx context.Context, userID string) (*Record, error)

	// Materialize inserts a free-tier record if none exists and returns the stored record
	Materialize(ctx context.Context, userID string) (*Record, error)

	// UpsertTierAndExpiry sets the tier fields, creating the record if needed.
	// source is stored for paid tiers and cleared for free.
	UpsertTierAndExpiry(ctx context.Context, userID string, tier Tier, proExpiresAt *time.Time, source PaidSource) (*Record, error)

	// ClaimCode records the user's first redemption of code and, in the same
	// transaction, grants a promo paid tier with the given expiry. claimed is
	// false, and nothing changes, when the user has redeemed code before.
	ClaimCode(ctx context.Context, userID, code string, proExpiresAt *time.Time) (rec *Record, claimed bool, err error)

	// CancelSubscription downgrades the user only while the paid tier is
	// payment-backed. It reports whether a downgrade happened.
	CancelSubscription(ctx context.Context, userID string) (bool, error)

	// ConditionalDecrement spends one credit only if the stored balance still
	// equals expected. It returns ErrConflict otherwise.
	ConditionalDecrement(ctx context.Context, userID string, expected int) error

	// Refill sets credits and the reset date together. It is a no-op when the
	// stored reset date is already on or after resetDate.
	Refill(ctx context.Context, userID string, credits int, resetDate time.Time) error

	// ExpireTier downgrades a paid record whose expiry is at or before now.
	// It is a no-op for records that are no longer expired.
	ExpireTier(ctx context.Context, userID string, now time.Time) error
}

// AuditLog records consume decisions for analytics
type AuditLog interface {
	// Record appends an event
	Record(ctx context.Context, event *Event) error

	// ListByUser returns a page of a user's events, newest first, and the total count
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Event, int64, error)

	// CountByDay aggregates events that occurred on the given UTC day
	CountByDay(ctx context.Context, day time.Time) ([]*UsageCount, error)

	// SaveDailyUsage upserts rolled up counts
	SaveDailyUsage(ctx context.Context, counts []*UsageCount) error
}
