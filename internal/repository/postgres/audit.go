package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pratik-mahalle/bibleplan/internal/domain/entitlement"
)

const (
	tableCreditEvents = "credit_events"
	tableUsageDaily   = "usage_daily"
)

// AuditRepository implements entitlement.AuditLog
type AuditRepository struct {
	db     *sql.DB
	driver string
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, driver string) *AuditRepository {
	return &AuditRepository{db: db, driver: driver}
}

// Record appends an event, assigning an ID and timestamp when missing
func (r *AuditRepository) Record(ctx context.Context, e *entitlement.Event) error {
	defer observe(tableCreditEvents, "insert", time.Now())

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO credit_events (id, user_id, action_type, outcome, credits_remaining, day, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, rebind(r.driver, query),
		e.ID, e.UserID, string(e.ActionType), string(e.Outcome), e.CreditsRemaining,
		entitlement.Day(e.OccurredAt).Format(entitlement.DateLayout), e.OccurredAt.Unix(),
	)
	if err != nil {
		return unavailable("audit_insert", err)
	}
	return nil
}

// ListByUser returns a page of the user's events, newest first
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*entitlement.Event, int64, error) {
	defer observe(tableCreditEvents, "list", time.Now())

	var total int64
	countQuery := rebind(r.driver, `SELECT COUNT(*) FROM credit_events WHERE user_id = ?`)
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, unavailable("audit_count", err)
	}

	query := `
		SELECT id, user_id, action_type, outcome, credits_remaining, occurred_at
		FROM credit_events
		WHERE user_id = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, query), userID, limit, offset)
	if err != nil {
		return nil, 0, unavailable("audit_list", err)
	}
	defer rows.Close()

	events := make([]*entitlement.Event, 0, limit)
	for rows.Next() {
		var e entitlement.Event
		var action, outcome string
		var occurredAt int64
		if err := rows.Scan(&e.ID, &e.UserID, &action, &outcome, &e.CreditsRemaining, &occurredAt); err != nil {
			return nil, 0, unavailable("audit_list", err)
		}
		e.ActionType = entitlement.ActionType(action)
		e.Outcome = entitlement.Outcome(outcome)
		e.OccurredAt = time.Unix(occurredAt, 0).UTC()
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, unavailable("audit_list", err)
	}

	return events, total, nil
}

// CountByDay aggregates the events of one UTC day by action and outcome
func (r *AuditRepository) CountByDay(ctx context.Context, day time.Time) ([]*entitlement.UsageCount, error) {
	defer observe(tableCreditEvents, "count_by_day", time.Now())

	d := entitlement.Day(day)
	query := `
		SELECT action_type, outcome, COUNT(*)
		FROM credit_events
		WHERE day = ?
		GROUP BY action_type, outcome
		ORDER BY action_type, outcome
	`
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, query), d.Format(entitlement.DateLayout))
	if err != nil {
		return nil, unavailable("audit_count_by_day", err)
	}
	defer rows.Close()

	var counts []*entitlement.UsageCount
	for rows.Next() {
		c := &entitlement.UsageCount{Day: d}
		var action, outcome string
		if err := rows.Scan(&action, &outcome, &c.Count); err != nil {
			return nil, unavailable("audit_count_by_day", err)
		}
		c.ActionType = entitlement.ActionType(action)
		c.Outcome = entitlement.Outcome(outcome)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("audit_count_by_day", err)
	}
	return counts, nil
}

// SaveDailyUsage upserts rolled up counts in one transaction
func (r *AuditRepository) SaveDailyUsage(ctx context.Context, counts []*entitlement.UsageCount) error {
	defer observe(tableUsageDaily, "upsert", time.Now())

	if len(counts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("usage_upsert", err)
	}
	defer tx.Rollback()

	query := rebind(r.driver, `
		INSERT INTO usage_daily (day, action_type, outcome, count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (day, action_type, outcome) DO UPDATE SET
			count = excluded.count,
			updated_at = excluded.updated_at
	`)
	now := time.Now().Unix()
	for _, c := range counts {
		_, err := tx.ExecContext(ctx, query,
			entitlement.Day(c.Day).Format(entitlement.DateLayout), string(c.ActionType), string(c.Outcome), c.Count, now,
		)
		if err != nil {
			return unavailable("usage_upsert", fmt.Errorf("%s/%s: %w", c.ActionType, c.Outcome, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("usage_upsert", err)
	}
	return nil
}

// DailyUsage returns the stored rollup for one UTC day
func (r *AuditRepository) DailyUsage(ctx context.Context, day time.Time) ([]*entitlement.UsageCount, error) {
	defer observe(tableUsageDaily, "select", time.Now())

	d := entitlement.Day(day)
	query := `
		SELECT action_type, outcome, count
		FROM usage_daily
		WHERE day = ?
		ORDER BY action_type, outcome
	`
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, query), d.Format(entitlement.DateLayout))
	if err != nil {
		return nil, unavailable("usage_select", err)
	}
	defer rows.Close()

	var counts []*entitlement.UsageCount
	for rows.Next() {
		c := &entitlement.UsageCount{Day: d}
		var action, outcome string
		if err := rows.Scan(&action, &outcome, &c.Count); err != nil {
			return nil, unavailable("usage_select", err)
		}
		c.ActionType = entitlement.ActionType(action)
		c.Outcome = entitlement.Outcome(outcome)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
