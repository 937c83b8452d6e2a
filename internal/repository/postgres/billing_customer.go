package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pratik-mahalle/bibleplan/internal/domain/billing"
	"github.com/pratik-mahalle/bibleplan/internal/pkg/metrics"
)

const tableBillingCustomers = "billing_customers"

// CustomerRepository implements billing.CustomerStore
type CustomerRepository struct {
	db     *sql.DB
	driver string
}

// NewCustomerRepository creates a new billing customer repository
func NewCustomerRepository(db *sql.DB, driver string) *CustomerRepository {
	return &CustomerRepository{db: db, driver: driver}
}

// SaveCustomer links customerID to userID, replacing any previous link
func (r *CustomerRepository) SaveCustomer(ctx context.Context, customerID, userID string) error {
	defer observe(tableBillingCustomers, "upsert", time.Now())

	now := time.Now().Unix()
	query := `
		INSERT INTO billing_customers (customer_id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (customer_id) DO UPDATE SET
			user_id = excluded.user_id,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, rebind(r.driver, query), customerID, userID, now, now); err != nil {
		metrics.RecordStoreError("customer_upsert")
		return fmt.Errorf("failed to save billing customer: %w", err)
	}
	return nil
}

// UserForCustomer returns the user linked to customerID
func (r *CustomerRepository) UserForCustomer(ctx context.Context, customerID string) (string, error) {
	defer observe(tableBillingCustomers, "select", time.Now())

	var userID string
	query := rebind(r.driver, `SELECT user_id FROM billing_customers WHERE customer_id = ?`)
	err := r.db.QueryRowContext(ctx, query, customerID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", billing.ErrCustomerNotFound
	}
	if err != nil {
		metrics.RecordStoreError("customer_select")
		return "", fmt.Errorf("failed to look up billing customer: %w", err)
	}
	return userID, nil
}
