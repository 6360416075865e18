package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vortx/internal/apperr"
	"vortx/internal/reliability"
)

const (
	serviceName        = "mercadopago"
	defaultBaseURL     = "https://api.mercadopago.com"
	defaultStoreURL    = "http://localhost:8000"
	defaultStoreName   = "Mi Tienda"
	defaultCurrency    = "ARS"
	defaultHTTPTimeout = 5 * time.Second
	webhookPath        = "/store/webhooks/mercadopago"
)

// ErrNotFound is returned when the processor has no such payment or preference.
var ErrNotFound = errors.New("mercadopago resource not found")

// ClientConfig configures the Mercado Pago client.
type ClientConfig struct {
	AccessToken string
	Sandbox     bool
	BaseURL     string
	StoreURL    string
	BackendURL  string
	StoreName   string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client talks to the Mercado Pago REST API.
type Client struct {
	token      string
	baseURL    string
	storeURL   string
	backendURL string
	storeName  string
	http       *http.Client
	logger     *slog.Logger
}

// NewClient constructs a Mercado Pago client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		token:      cfg.AccessToken,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		storeURL:   strings.TrimRight(cfg.StoreURL, "/"),
		backendURL: strings.TrimRight(cfg.BackendURL, "/"),
		storeName:  cfg.StoreName,
		http:       cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.storeURL == "" {
		c.storeURL = defaultStoreURL
	}
	if c.storeName == "" {
		c.storeName = defaultStoreName
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	mode := "production"
	if cfg.Sandbox {
		mode = "sandbox"
	}
	c.logger.Info("mercadopago client initialized", "mode", mode)
	return c
}

type preferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceRequest struct {
	Items               []preferenceItem `json:"items"`
	Payer               *Payer           `json:"payer,omitempty"`
	BackURLs            BackURLs         `json:"back_urls"`
	NotificationURL     string           `json:"notification_url,omitempty"`
	AutoReturn          string           `json:"auto_return"`
	ExternalReference   string           `json:"external_reference"`
	StatementDescriptor string           `json:"statement_descriptor"`
}

// ValidatePreference checks a preference input before anything is sent.
func ValidatePreference(in PreferenceInput) error {
	if strings.TrimSpace(in.OrderID) == "" {
		return apperr.Validation("orderId", "is required")
	}
	if len(in.Items) == 0 {
		return apperr.Validation("items", "at least one item is required")
	}
	var details []string
	for i, item := range in.Items {
		if strings.TrimSpace(item.Title) == "" {
			details = append(details, fmt.Sprintf("items[%d].title is required", i))
		}
		if item.Quantity <= 0 {
			details = append(details, fmt.Sprintf("items[%d].quantity must be a positive integer", i))
		}
		if item.UnitPrice <= 0 {
			details = append(details, fmt.Sprintf("items[%d].unit_price must be positive", i))
		}
	}
	if len(details) > 0 {
		return &apperr.ValidationError{Field: "items", Message: "invalid items", Details: details}
	}
	return nil
}

func (c *Client) buildPreference(in PreferenceInput) preferenceRequest {
	req := preferenceRequest{
		Items:               make([]preferenceItem, 0, len(in.Items)),
		NotificationURL:     in.NotificationURL,
		AutoReturn:          "approved",
		ExternalReference:   in.OrderID,
		StatementDescriptor: c.storeName,
		BackURLs: BackURLs{
			Success: c.storeURL + "/checkout/success",
			Failure: c.storeURL + "/checkout/failure",
			Pending: c.storeURL + "/checkout/pending",
		},
	}
	for i, item := range in.Items {
		currency := item.CurrencyID
		if currency == "" {
			currency = defaultCurrency
		}
		req.Items = append(req.Items, preferenceItem{
			ID:         "item-" + strconv.Itoa(i+1),
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			CurrencyID: currency,
		})
	}
	if in.Payer != nil {
		payer := *in.Payer
		req.Payer = &payer
	}
	if in.BackURLs != nil {
		if in.BackURLs.Success != "" {
			req.BackURLs.Success = in.BackURLs.Success
		}
		if in.BackURLs.Failure != "" {
			req.BackURLs.Failure = in.BackURLs.Failure
		}
		if in.BackURLs.Pending != "" {
			req.BackURLs.Pending = in.BackURLs.Pending
		}
	}
	if req.NotificationURL == "" && c.backendURL != "" {
		req.NotificationURL = c.backendURL + webhookPath
	}
	return req
}

// CreatePreference opens a checkout preference for an order.
func (c *Client) CreatePreference(ctx context.Context, in PreferenceInput) (Preference, error) {
	if err := ValidatePreference(in); err != nil {
		return Preference{}, err
	}
	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", c.buildPreference(in), &pref); err != nil {
		return Preference{}, apperr.Service(serviceName, "create preference", err)
	}
	c.logger.Info("created mercadopago preference", "order_id", in.OrderID, "preference_id", pref.ID)
	return pref, nil
}

// ExpirePreference closes a preference so it can no longer be paid.
func (c *Client) ExpirePreference(ctx context.Context, preferenceID string) error {
	if preferenceID == "" {
		return apperr.Validation("preferenceId", "is required")
	}
	body := map[string]any{
		"expires":            true,
		"expiration_date_to": time.Now().UTC().Format("2006-01-02T15:04:05.000-07:00"),
	}
	if err := c.do(ctx, http.MethodPut, "/checkout/preferences/"+preferenceID, body, nil); err != nil {
		return apperr.Service(serviceName, "expire preference", err)
	}
	c.logger.Info("expired mercadopago preference", "preference_id", preferenceID)
	return nil
}

type paymentResponse struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	TransactionAmount float64     `json:"transaction_amount"`
	CurrencyID        string      `json:"currency_id"`
	DateCreated       string      `json:"date_created"`
	DateApproved      string      `json:"date_approved"`
	ExternalReference string      `json:"external_reference"`
	PaymentMethodID   string      `json:"payment_method_id"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
}

// GetPayment fetches a payment. Ids must be numeric.
func (c *Client) GetPayment(ctx context.Context, id string) (Payment, error) {
	id = strings.TrimSpace(id)
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return Payment{}, apperr.Service(serviceName, "get payment", reliability.Permanent(fmt.Errorf("invalid payment ID: %q", id)))
	}

	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+id, nil, &resp); err != nil {
		c.logger.Error("get mercadopago payment failed", "payment_id", id, "error", err)
		return Payment{}, apperr.Service(serviceName, "get payment", err)
	}
	return Payment{
		ID:                resp.ID.String(),
		Status:            resp.Status,
		StatusDetail:      resp.StatusDetail,
		TransactionAmount: resp.TransactionAmount,
		CurrencyID:        resp.CurrencyID,
		DateCreated:       resp.DateCreated,
		DateApproved:      resp.DateApproved,
		ExternalReference: resp.ExternalReference,
		PaymentMethodID:   resp.PaymentMethodID,
		PayerEmail:        resp.Payer.Email,
	}, nil
}

// statusError is a non-2xx response from the API.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return reliability.Permanent(err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return reliability.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		serr := &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return reliability.Permanent(fmt.Errorf("%w: %v", ErrNotFound, serr))
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			return serr
		default:
			return reliability.Permanent(serr)
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
