package payment

import "context"

// PaymentStatus is the normalized status the storefront acts on.
type PaymentStatus string

const (
	StatusApproved PaymentStatus = "approved"
	StatusRejected PaymentStatus = "rejected"
	StatusPending  PaymentStatus = "pending"
)

// NormalizedPaymentStatus is the reconciler's output for a payment notification.
type NormalizedPaymentStatus struct {
	PaymentID string        `json:"paymentId"`
	OrderID   string        `json:"orderId"`
	Status    PaymentStatus `json:"status"`
	Amount    float64       `json:"amount"`
}

// LineItem is one purchasable line of a checkout preference.
type LineItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id,omitempty"`
}

type Phone struct {
	AreaCode string `json:"area_code"`
	Number   string `json:"number"`
}

type Payer struct {
	Name    string `json:"name,omitempty"`
	Surname string `json:"surname,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   *Phone `json:"phone,omitempty"`
}

type BackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

// PreferenceInput describes a checkout to open with the processor.
type PreferenceInput struct {
	OrderID         string
	Items           []LineItem
	Payer           *Payer
	BackURLs        *BackURLs
	NotificationURL string
}

// Preference is a checkout session created at the processor.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment is the processor's authoritative view of a payment.
type Payment struct {
	ID                string
	Status            string
	StatusDetail      string
	TransactionAmount float64
	CurrencyID        string
	DateCreated       string
	DateApproved      string
	ExternalReference string
	PaymentMethodID   string
	PayerEmail        string
}

// PaymentGetter fetches a payment by id. It is all the reconciler needs.
type PaymentGetter interface {
	GetPayment(ctx context.Context, id string) (Payment, error)
}

// Processor is the payment processor surface used by checkout and webhooks.
type Processor interface {
	PaymentGetter
	CreatePreference(ctx context.Context, in PreferenceInput) (Preference, error)
	ExpirePreference(ctx context.Context, preferenceID string) error
}

// MapStatus maps a processor status to the storefront's status. It is total:
// any unknown or empty status is pending.
func MapStatus(raw string) PaymentStatus {
	switch raw {
	case "approved":
		return StatusApproved
	case "rejected", "cancelled":
		return StatusRejected
	default:
		return StatusPending
	}
}
