package ordersdb

import (
	"context"
	"database/sql"
	"errors"

	"vortx/internal/apperr"
	"vortx/internal/orders"
	"vortx/internal/payment"
)

// PaymentStatusStore persists order payment state in Postgres.
type PaymentStatusStore struct {
	db *sql.DB
}

func NewPaymentStatusStore(db *sql.DB) *PaymentStatusStore {
	return &PaymentStatusStore{db: db}
}

// NewPaymentStatusStoreWithSchema initializes the schema then returns the store.
func NewPaymentStatusStoreWithSchema(ctx context.Context, db *sql.DB) (*PaymentStatusStore, error) {
	store := NewPaymentStatusStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// InitSchema creates the order_payments table if it does not exist.
func (s *PaymentStatusStore) InitSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS order_payments (
			order_id TEXT PRIMARY KEY,
			preference_id TEXT,
			payment_id TEXT,
			status TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (s *PaymentStatusStore) RecordPending(ctx context.Context, orderID, preferenceID string, amount float64) error {
	if orderID == "" {
		return apperr.Validation("orderId", "order id required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO order_payments (order_id, preference_id, status, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO NOTHING`,
		orderID, preferenceID, payment.StatusPending, amount,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return orders.ErrAlreadyRecorded
	}
	return nil
}

// Apply upserts the status in one statement. The conflict guard keeps approved
// rows final and turns repeats into no-ops, so RowsAffected reports a change.
func (s *PaymentStatusStore) Apply(ctx context.Context, st payment.NormalizedPaymentStatus) (bool, error) {
	if st.OrderID == "" {
		return false, apperr.Validation("orderId", "order id required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO order_payments (order_id, payment_id, status, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO UPDATE
		SET payment_id = EXCLUDED.payment_id, status = EXCLUDED.status, amount = EXCLUDED.amount, updated_at = NOW()
		WHERE order_payments.status <> 'approved'
			AND (order_payments.status <> EXCLUDED.status OR order_payments.payment_id IS DISTINCT FROM EXCLUDED.payment_id)`,
		st.OrderID, st.PaymentID, st.Status, st.Amount,
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *PaymentStatusStore) Get(ctx context.Context, orderID string) (orders.PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, COALESCE(preference_id, ''), COALESCE(payment_id, ''), status, amount, updated_at
		FROM order_payments
		WHERE order_id = $1`,
		orderID,
	)

	var rec orders.PaymentRecord
	var status string
	if err := row.Scan(&rec.OrderID, &rec.PreferenceID, &rec.PaymentID, &status, &rec.Amount, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.PaymentRecord{}, orders.ErrPaymentNotFound
		}
		return orders.PaymentRecord{}, err
	}
	rec.Status = payment.PaymentStatus(status)
	return rec, nil
}

func (s *PaymentStatusStore) DeletePending(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM order_payments
		WHERE order_id = $1 AND status = $2`,
		orderID, payment.StatusPending,
	)
	return err
}
