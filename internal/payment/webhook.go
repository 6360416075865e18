package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"vortx/internal/apperr"
)

// KindPayment is the only notification kind the reconciler acts on.
const KindPayment = "payment"

// Notification is an inbound processor notification. The processor sends
// two shapes: v2 webhooks carrying "type" and "data.id", and legacy IPN
// callbacks carrying "topic" and "id". Anything else is UnknownNotification.
type Notification interface {
	// ResourceID resolves data.id first, then id.
	ResourceID() string
	// Kind resolves type first, then topic.
	Kind() string
}

// WebhookNotification is a v2 webhook.
type WebhookNotification struct {
	Type     string
	Topic    string
	Action   string
	DataID   string
	ID       string
	LiveMode bool
}

func (n WebhookNotification) ResourceID() string { return firstNonEmpty(n.DataID, n.ID) }
func (n WebhookNotification) Kind() string       { return firstNonEmpty(n.Type, n.Topic) }

// IPNNotification is a legacy IPN callback.
type IPNNotification struct {
	Topic    string
	ID       string
	DataID   string
	Resource string
}

func (n IPNNotification) ResourceID() string { return firstNonEmpty(n.DataID, n.ID) }
func (n IPNNotification) Kind() string       { return n.Topic }

// UnknownNotification is any payload that names neither a type nor a topic.
type UnknownNotification struct {
	DataID string
	ID     string
}

func (n UnknownNotification) ResourceID() string { return firstNonEmpty(n.DataID, n.ID) }
func (n UnknownNotification) Kind() string       { return "" }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

type rawNotification struct {
	Type     string          `json:"type"`
	Topic    string          `json:"topic"`
	Action   string          `json:"action"`
	Resource string          `json:"resource"`
	ID       json.RawMessage `json:"id"`
	LiveMode bool            `json:"live_mode"`
	Data     struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseNotification classifies a notification from its JSON body, using the
// query string (type, topic, id, data.id) to fill fields the body lacks.
// It never fails; a malformed body is treated as empty.
func ParseNotification(body []byte, query url.Values) Notification {
	var raw rawNotification
	if len(bytes.TrimSpace(body)) > 0 {
		_ = json.Unmarshal(body, &raw)
	}

	typ := firstNonEmpty(strings.TrimSpace(raw.Type), query.Get("type"))
	topic := firstNonEmpty(strings.TrimSpace(raw.Topic), query.Get("topic"))
	id := firstNonEmpty(rawID(raw.ID), strings.TrimSpace(query.Get("id")))
	dataID := firstNonEmpty(rawID(raw.Data.ID), strings.TrimSpace(query.Get("data.id")))

	switch {
	case typ != "":
		return WebhookNotification{
			Type:     typ,
			Topic:    topic,
			Action:   raw.Action,
			DataID:   dataID,
			ID:       id,
			LiveMode: raw.LiveMode,
		}
	case topic != "":
		return IPNNotification{Topic: topic, ID: id, DataID: dataID, Resource: raw.Resource}
	default:
		return UnknownNotification{DataID: dataID, ID: id}
	}
}

// rawID accepts ids sent as JSON strings or numbers.
func rawID(msg json.RawMessage) string {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(msg, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

// Reconciler turns notifications into normalized payment statuses. It never
// trusts the notification's own status: payments are always re-fetched.
type Reconciler struct {
	payments PaymentGetter
	logger   *slog.Logger
}

func NewReconciler(payments PaymentGetter, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{payments: payments, logger: logger}
}

// Reconcile returns nil with no error when the notification carries no
// resource id or is not about a payment; no fetch happens in that case.
// Fetch failures surface as *apperr.ServiceError so the caller can ask the
// processor to retry.
func (r *Reconciler) Reconcile(ctx context.Context, n Notification) (*NormalizedPaymentStatus, error) {
	id := n.ResourceID()
	if id == "" {
		r.logger.Warn("webhook received without resource id")
		return nil, nil
	}
	kind := n.Kind()
	if kind != KindPayment {
		r.logger.Info("ignoring webhook notification", "kind", kind, "resource_id", id)
		return nil, nil
	}

	p, err := r.payments.GetPayment(ctx, id)
	if err != nil {
		return nil, apperr.Service(serviceName, "get payment", err)
	}

	paymentID := p.ID
	if paymentID == "" {
		paymentID = id
	}
	return &NormalizedPaymentStatus{
		PaymentID: paymentID,
		OrderID:   p.ExternalReference,
		Status:    MapStatus(p.Status),
		Amount:    p.TransactionAmount,
	}, nil
}

// ReconcileWebhook parses and reconciles a raw notification.
func (r *Reconciler) ReconcileWebhook(ctx context.Context, body []byte, query url.Values) (*NormalizedPaymentStatus, error) {
	return r.Reconcile(ctx, ParseNotification(body, query))
}
