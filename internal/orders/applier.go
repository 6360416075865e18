package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"vortx/internal/payment"
)

// Broadcaster pushes a message to the subscribers of one order.
type Broadcaster interface {
	BroadcastTopic(topic string, msg []byte)
}

// EventLog keeps an append-only history of applied status changes.
type EventLog interface {
	Append(ctx context.Context, rec PaymentRecord) error
}

// StatusApplier stores reconciled statuses, then fans each change out to the
// event log and to live subscribers.
type StatusApplier struct {
	store       PaymentStatusStore
	events      EventLog
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

func NewStatusApplier(store PaymentStatusStore, events EventLog, broadcaster Broadcaster, logger *slog.Logger) *StatusApplier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusApplier{
		store:       store,
		events:      events,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// Apply records st. Unchanged statuses are neither logged nor broadcast.
func (a *StatusApplier) Apply(ctx context.Context, st payment.NormalizedPaymentStatus) (bool, error) {
	changed, err := a.store.Apply(ctx, st)
	if err != nil {
		return false, err
	}
	if !changed {
		a.logger.Debug("payment status unchanged", "order_id", st.OrderID, "status", st.Status)
		return false, nil
	}
	a.logger.Info("payment status applied", "order_id", st.OrderID, "payment_id", st.PaymentID, "status", st.Status)

	rec := PaymentRecord{
		OrderID:   st.OrderID,
		PaymentID: st.PaymentID,
		Status:    st.Status,
		Amount:    st.Amount,
		UpdatedAt: a.now().UTC(),
	}

	var errs []error
	if a.events != nil {
		if err := a.events.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}

	if a.broadcaster != nil {
		payload := struct {
			Type      string                `json:"type"`
			OrderID   string                `json:"order_id"`
			PaymentID string                `json:"payment_id"`
			Status    payment.PaymentStatus `json:"status"`
			Amount    float64               `json:"amount"`
			Timestamp time.Time             `json:"timestamp"`
		}{
			Type:      "payment_status",
			OrderID:   rec.OrderID,
			PaymentID: rec.PaymentID,
			Status:    rec.Status,
			Amount:    rec.Amount,
			Timestamp: rec.UpdatedAt,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			errs = append(errs, err)
		} else {
			a.broadcaster.BroadcastTopic(OrderTopic(rec.OrderID), data)
		}
	}

	if err := errors.Join(errs...); err != nil {
		// The status itself is stored; only the fan-out was partial.
		a.logger.Warn("payment status fan-out failed", "order_id", st.OrderID, "error", err)
	}
	return true, nil
}

// OrderTopic is the realtime topic carrying one order's updates.
func OrderTopic(orderID string) string {
	return "order:" + orderID
}
