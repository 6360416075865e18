package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vortx/internal/apperr"
	"vortx/internal/payment"
)

// PaymentRecord is the payment state of one storefront order.
type PaymentRecord struct {
	OrderID      string                `json:"order_id"`
	PreferenceID string                `json:"preference_id,omitempty"`
	PaymentID    string                `json:"payment_id,omitempty"`
	Status       payment.PaymentStatus `json:"status"`
	Amount       float64               `json:"amount"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// PaymentStatusStore persists order payment state.
type PaymentStatusStore interface {
	// RecordPending stores a new pending payment for an order opened at checkout.
	RecordPending(ctx context.Context, orderID, preferenceID string, amount float64) error
	// Apply stores a reconciled status and reports whether anything changed.
	Apply(ctx context.Context, st payment.NormalizedPaymentStatus) (bool, error)
	Get(ctx context.Context, orderID string) (PaymentRecord, error)
	// DeletePending removes the order's row only while it is still pending.
	DeletePending(ctx context.Context, orderID string) error
}

var (
	ErrPaymentNotFound = fmt.Errorf("order payment: %w", apperr.ErrNotFound)
	ErrAlreadyRecorded = fmt.Errorf("order payment already recorded: %w", apperr.ErrConflict)
	errOrderIDRequired = errors.New("order id required")
)

// ShouldApply reports whether incoming replaces current. An approved payment
// is final, and repeating the same status for the same payment is a no-op.
func ShouldApply(current PaymentRecord, incoming payment.NormalizedPaymentStatus) bool {
	if current.Status == payment.StatusApproved {
		return false
	}
	return current.Status != incoming.Status || current.PaymentID != incoming.PaymentID
}

func validateOrderID(orderID string) error {
	if orderID == "" {
		return apperr.Validation("orderId", errOrderIDRequired.Error())
	}
	return nil
}
