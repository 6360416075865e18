// Package checkout opens payment preferences for storefront orders.
package checkout

import (
	"context"
	"log/slog"
	"strings"

	"vortx/internal/orders"
	"vortx/internal/payment"
	"vortx/internal/workflow"
)

const (
	WorkflowName                 = "create-payment-preference"
	CreatePreferenceStepName     = "create-payment-preference-step"
	RecordPendingPaymentStepName = "record-pending-payment-step"
)

type Item struct {
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type Input struct {
	OrderID       string `json:"orderId"`
	Items         []Item `json:"items"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	CustomerName  string `json:"customerName,omitempty"`
}

type Result struct {
	Preference payment.Preference `json:"preference"`
}

type preferenceCompensation struct {
	PreferenceID string
}

type pendingInput struct {
	OrderID      string
	PreferenceID string
	Amount       float64
}

type pendingCompensation struct {
	OrderID string
}

// Total is the order amount across all items.
func (in Input) Total() float64 {
	var total float64
	for _, it := range in.Items {
		total += float64(it.Quantity) * it.UnitPrice
	}
	return total
}

// PreferenceInput maps the checkout request onto the processor's input. A
// payer is only sent when an email is known; the name's first word is the
// payer name and the rest the surname.
func (in Input) PreferenceInput() payment.PreferenceInput {
	items := make([]payment.LineItem, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, payment.LineItem{Title: it.Title, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	out := payment.PreferenceInput{OrderID: in.OrderID, Items: items}
	if in.CustomerEmail != "" {
		payer := &payment.Payer{Email: in.CustomerEmail}
		if fields := strings.Fields(in.CustomerName); len(fields) > 0 {
			payer.Name = fields[0]
			payer.Surname = strings.Join(fields[1:], " ")
		}
		out.Payer = payer
	}
	return out
}

// NewWorkflow defines create-payment-preference: open a preference at the
// processor, then record the order's pending payment. A failed record expires
// the preference so no orphan checkout stays payable.
func NewWorkflow(processor payment.Processor, store orders.PaymentStatusStore, logger *slog.Logger) *workflow.Workflow[Input, Result] {
	if logger == nil {
		logger = slog.Default()
	}

	create := workflow.NewStep(CreatePreferenceStepName,
		func(ctx context.Context, in Input) (payment.Preference, preferenceCompensation, error) {
			pref, err := processor.CreatePreference(ctx, in.PreferenceInput())
			if err != nil {
				return payment.Preference{}, preferenceCompensation{}, err
			}
			return pref, preferenceCompensation{PreferenceID: pref.ID}, nil
		},
		func(ctx context.Context, c preferenceCompensation) error {
			logger.Info("expiring payment preference", "preference_id", c.PreferenceID)
			return processor.ExpirePreference(ctx, c.PreferenceID)
		},
	)

	record := workflow.NewStep(RecordPendingPaymentStepName,
		func(ctx context.Context, in pendingInput) (struct{}, pendingCompensation, error) {
			if err := store.RecordPending(ctx, in.OrderID, in.PreferenceID, in.Amount); err != nil {
				return struct{}{}, pendingCompensation{}, err
			}
			return struct{}{}, pendingCompensation{OrderID: in.OrderID}, nil
		},
		func(ctx context.Context, c pendingCompensation) error {
			return store.DeletePending(ctx, c.OrderID)
		},
	)

	return workflow.New(WorkflowName,
		func(x *workflow.Execution, in Input) (Result, error) {
			pref, err := workflow.Exec(x, create, in)
			if err != nil {
				return Result{}, err
			}
			if _, err := workflow.Exec(x, record, pendingInput{OrderID: in.OrderID, PreferenceID: pref.ID, Amount: in.Total()}); err != nil {
				return Result{}, err
			}
			return Result{Preference: pref}, nil
		},
		create, record,
	)
}
