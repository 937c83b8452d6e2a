package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/metrics"
)

// EntitlementStore implements entitlement.Store. Every mutation is a single
// conditional statement so concurrent requests never overwrite each other.
type EntitlementStore struct {
	db     *sql.DB
	driver string
}

// NewEntitlementStore creates a new entitlement store
func NewEntitlementStore(db *sql.DB, driver string) *EntitlementStore {
	return &EntitlementStore{db: db, driver: driver}
}

const tableEntitlements = "entitlements"

const entitlementColumns = `user_id, tier, daily_credits, last_reset_date, pro_expires_at, paid_source, created_at, updated_at`

// Get retrieves the record for a user
func (s *EntitlementStore) Get(ctx context.Context, userID string) (*entitlement.Record, error) {
	defer observe(tableEntitlements, "get", time.Now())

	query := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE user_id = ?`
	rec, err := scanEntitlement(s.db.QueryRowContext(ctx, rebind(s.driver, query), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entitlement.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return rec, nil
}

// Materialize inserts a free-tier record with no balance and no reset date,
// so the first read refills it. Existing records are left untouched.
func (s *EntitlementStore) Materialize(ctx context.Context, userID string) (*entitlement.Record, error) {
	start := time.Now()
	now := start.Unix()

	query := `
		INSERT INTO entitlements (user_id, tier, daily_credits, last_reset_date, pro_expires_at, created_at, updated_at)
		VALUES (?, ?, 0, NULL, NULL, ?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, rebind(s.driver, query), userID, string(entitlement.TierFree), now, now); err != nil {
		return nil, unavailable("materialize", err)
	}
	observe(tableEntitlements, "materialize", start)

	return s.Get(ctx, userID)
}

// UpsertTierAndExpiry sets tier, expiry and grant source, creating the
// record if needed. Credits and reset date of an existing record are preserved.
func (s *EntitlementStore) UpsertTierAndExpiry(ctx context.Context, userID string, tier entitlement.Tier, proExpiresAt *time.Time, source entitlement.PaidSource) (*entitlement.Record, error) {
	start := time.Now()
	if err := upsertTier(ctx, s.db, s.driver, userID, tier, proExpiresAt, source, start.Unix()); err != nil {
		return nil, unavailable("upsert_tier", err)
	}
	observe(tableEntitlements, "upsert_tier", start)

	return s.Get(ctx, userID)
}

// ClaimCode inserts the (user, code) redemption and grants the promo tier in
// one transaction. A repeat redemption affects no rows and grants nothing.
func (s *EntitlementStore) ClaimCode(ctx context.Context, userID, code string, proExpiresAt *time.Time) (*entitlement.Record, bool, error) {
	start := time.Now()
	now := start.Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, unavailable("claim_code", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO code_redemptions (user_id, code, expires_at, redeemed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, code) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, rebind(s.driver, query), userID, code, nullUnix(proExpiresAt), now)
	if err != nil {
		return nil, false, unavailable("claim_code", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, unavailable("claim_code", err)
	}

	claimed := n > 0
	if claimed {
		if err := upsertTier(ctx, tx, s.driver, userID, entitlement.TierPaid, proExpiresAt, entitlement.PaidSourcePromo, now); err != nil {
			return nil, false, unavailable("claim_code", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, unavailable("claim_code", err)
	}
	observe("code_redemptions", "claim_code", start)

	rec, err := s.Get(ctx, userID)
	if errors.Is(err, entitlement.ErrNotFound) && !claimed {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, claimed, nil
}

// CancelSubscription downgrades a payment-backed paid tier. Promo grants
// are left alone.
func (s *EntitlementStore) CancelSubscription(ctx context.Context, userID string) (bool, error) {
	defer observe(tableEntitlements, "cancel_subscription", time.Now())

	query := `
		UPDATE entitlements
		SET tier = ?, pro_expires_at = NULL, paid_source = '', updated_at = ?
		WHERE user_id = ? AND tier = ? AND paid_source = ?
	`
	result, err := s.db.ExecContext(ctx, rebind(s.driver, query),
		string(entitlement.TierFree), time.Now().Unix(), userID,
		string(entitlement.TierPaid), string(entitlement.PaidSourcePayment),
	)
	if err != nil {
		return false, unavailable("cancel_subscription", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("cancel_subscription", err)
	}
	return n > 0, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertTier(ctx context.Context, db execer, driver, userID string, tier entitlement.Tier, proExpiresAt *time.Time, source entitlement.PaidSource, now int64) error {
	if tier != entitlement.TierPaid {
		source = entitlement.PaidSourceNone
	}
	query := `
		INSERT INTO entitlements (user_id, tier, daily_credits, last_reset_date, pro_expires_at, paid_source, created_at, updated_at)
		VALUES (?, ?, 0, NULL, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			tier = excluded.tier,
			pro_expires_at = excluded.pro_expires_at,
			paid_source = excluded.paid_source,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, rebind(driver, query), userID, string(tier), nullUnix(proExpiresAt), string(source), now, now)
	return err
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// ConditionalDecrement spends one credit if the balance still equals expected
func (s *EntitlementStore) ConditionalDecrement(ctx context.Context, userID string, expected int) error {
	defer observe(tableEntitlements, "decrement", time.Now())

	query := `
		UPDATE entitlements
		SET daily_credits = daily_credits - 1, updated_at = ?
		WHERE user_id = ? AND daily_credits = ? AND daily_credits > 0
	`
	result, err := s.db.ExecContext(ctx, rebind(s.driver, query), time.Now().Unix(), userID, expected)
	if err != nil {
		return unavailable("decrement", err)
	}
	return requireRow(result, "decrement")
}

// Refill sets credits and reset date unless the stored reset date has
// already reached resetDate. Dates compare correctly as YYYY-MM-DD text.
func (s *EntitlementStore) Refill(ctx context.Context, userID string, credits int, resetDate time.Time) error {
	defer observe(tableEntitlements, "refill", time.Now())

	day := entitlement.Day(resetDate).Format(entitlement.DateLayout)
	query := `
		UPDATE entitlements
		SET daily_credits = ?, last_reset_date = ?, updated_at = ?
		WHERE user_id = ? AND (last_reset_date IS NULL OR last_reset_date < ?)
	`
	if _, err := s.db.ExecContext(ctx, rebind(s.driver, query), credits, day, time.Now().Unix(), userID, day); err != nil {
		return unavailable("refill", err)
	}
	return nil
}

// ExpireTier downgrades the user if their paid tier has lapsed at now
func (s *EntitlementStore) ExpireTier(ctx context.Context, userID string, now time.Time) error {
	defer observe(tableEntitlements, "expire_tier", time.Now())

	query := `
		UPDATE entitlements
		SET tier = ?, pro_expires_at = NULL, paid_source = '', updated_at = ?
		WHERE user_id = ? AND tier = ? AND pro_expires_at IS NOT NULL AND pro_expires_at <= ?
	`
	_, err := s.db.ExecContext(ctx, rebind(s.driver, query),
		string(entitlement.TierFree), time.Now().Unix(), userID, string(entitlement.TierPaid), now.Unix(),
	)
	if err != nil {
		return unavailable("expire_tier", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntitlement(row rowScanner) (*entitlement.Record, error) {
	var rec entitlement.Record
	var tier, source string
	var lastReset sql.NullString
	var expiry sql.NullInt64
	var createdAt, updatedAt int64

	if err := row.Scan(&rec.UserID, &tier, &rec.DailyCredits, &lastReset, &expiry, &source, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	rec.Tier = entitlement.Tier(tier)
	if !rec.Tier.IsValid() {
		return nil, fmt.Errorf("%w: %q", entitlement.ErrCorruptRecord, tier)
	}
	rec.PaidSource = entitlement.PaidSource(source)
	if lastReset.Valid && lastReset.String != "" {
		d, err := time.ParseInLocation(entitlement.DateLayout, lastReset.String, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("bad last_reset_date %q: %w", lastReset.String, err)
		}
		rec.LastResetDate = &d
	}
	if expiry.Valid {
		t := time.Unix(expiry.Int64, 0).UTC()
		rec.ProExpiresAt = &t
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &rec, nil
}

func requireRow(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return unavailable(op, err)
	}
	if n == 0 {
		return entitlement.ErrConflict
	}
	return nil
}

func unavailable(op string, err error) error {
	metrics.RecordStoreError(op)
	return fmt.Errorf("%w: %s: %w", entitlement.ErrStoreUnavailable, op, err)
}

func observe(table, op string, start time.Time) {
	metrics.RecordDBQuery(op, table, time.Since(start))
}
