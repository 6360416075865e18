package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"vortx/internal/apperr"
	"vortx/internal/reliability"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		AccessToken: "TEST-token",
		BaseURL:     srv.URL,
		StoreURL:    "https://shop.example",
		BackendURL:  "https://api.example",
		Logger:      quietLogger(),
	})
}

func TestClient_CreatePreferenceBuildsRequest(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/checkout/preferences" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer TEST-token" {
			t.Errorf("missing bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp/init","sandbox_init_point":"https://mp/sandbox"}`))
	})

	pref, err := client.CreatePreference(context.Background(), PreferenceInput{
		OrderID: "order-1",
		Items: []LineItem{
			{Title: "Shoe", Quantity: 2, UnitPrice: 10.5},
			{Title: "Sock", Quantity: 1, UnitPrice: 2, CurrencyID: "USD"},
		},
		Payer:    &Payer{Email: "a@b.c", Name: "Ana"},
		BackURLs: &BackURLs{Failure: "https://custom/fail"},
	})
	if err != nil {
		t.Fatalf("create preference: %v", err)
	}
	if pref.ID != "pref-1" || pref.InitPoint != "https://mp/init" || pref.SandboxInitPoint != "https://mp/sandbox" {
		t.Fatalf("unexpected preference %+v", pref)
	}

	items := got["items"].([]any)
	first := items[0].(map[string]any)
	second := items[1].(map[string]any)
	if first["id"] != "item-1" || first["currency_id"] != "ARS" || second["id"] != "item-2" || second["currency_id"] != "USD" {
		t.Fatalf("unexpected items %v", items)
	}
	back := got["back_urls"].(map[string]any)
	if back["success"] != "https://shop.example/checkout/success" || back["failure"] != "https://custom/fail" || back["pending"] != "https://shop.example/checkout/pending" {
		t.Fatalf("unexpected back urls %v", back)
	}
	if got["notification_url"] != "https://api.example/store/webhooks/mercadopago" {
		t.Fatalf("unexpected notification url %v", got["notification_url"])
	}
	if got["external_reference"] != "order-1" || got["auto_return"] != "approved" || got["statement_descriptor"] != "Mi Tienda" {
		t.Fatalf("unexpected preference fields %v", got)
	}
}

func TestClient_CreatePreferenceValidatesBeforeCalling(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	inputs := []PreferenceInput{
		{Items: []LineItem{{Title: "x", Quantity: 1, UnitPrice: 1}}},
		{OrderID: "o"},
		{OrderID: "o", Items: []LineItem{{Title: "x", Quantity: 0, UnitPrice: 1}}},
		{OrderID: "o", Items: []LineItem{{Title: "x", Quantity: 1, UnitPrice: 0}}},
	}
	for i, in := range inputs {
		_, err := client.CreatePreference(context.Background(), in)
		var verr *apperr.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("input %d: expected validation error, got %v", i, err)
		}
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no API calls")
	}
}

func TestClient_GetPayment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/555" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":555,"status":"approved","status_detail":"accredited","transaction_amount":100,"currency_id":"ARS","external_reference":"order-9","payment_method_id":"visa","payer":{"email":"p@x.y"}}`))
	})

	p, err := client.GetPayment(context.Background(), "555")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.ID != "555" || p.Status != "approved" || p.TransactionAmount != 100 || p.ExternalReference != "order-9" || p.PayerEmail != "p@x.y" {
		t.Fatalf("unexpected payment %+v", p)
	}
}

func TestClient_GetPaymentRejectsNonNumericID(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.GetPayment(context.Background(), "abc")
	var svcErr *apperr.ServiceError
	if !errors.As(err, &svcErr) || !reliability.IsPermanent(err) {
		t.Fatalf("expected permanent service error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no API calls")
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
		notFound  bool
	}{
		{http.StatusNotFound, true, true},
		{http.StatusBadRequest, true, false},
		{http.StatusTooManyRequests, false, false},
		{http.StatusBadGateway, false, false},
	}
	for _, tt := range tests {
		status := tt.status
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		})
		_, err := client.GetPayment(context.Background(), "1")
		var svcErr *apperr.ServiceError
		if !errors.As(err, &svcErr) {
			t.Fatalf("%d: expected ServiceError, got %v", status, err)
		}
		if reliability.IsPermanent(err) != tt.permanent {
			t.Fatalf("%d: permanent = %v", status, !tt.permanent)
		}
		if errors.Is(err, ErrNotFound) != tt.notFound {
			t.Fatalf("%d: not found = %v", status, !tt.notFound)
		}
	}
}

func TestClient_ExpirePreference(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/checkout/preferences/pref-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{}`))
	})

	if err := client.ExpirePreference(context.Background(), "pref-1"); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if body["expires"] != true {
		t.Fatalf("expected expires flag, got %v", body)
	}
}

type countingProcessor struct {
	getErrs    []error
	createErr  error
	getCalls   int
	createCall int
}

func (p *countingProcessor) GetPayment(ctx context.Context, id string) (Payment, error) {
	p.getCalls++
	if p.getCalls <= len(p.getErrs) {
		return Payment{}, p.getErrs[p.getCalls-1]
	}
	return Payment{ID: id, Status: "approved"}, nil
}

func (p *countingProcessor) CreatePreference(ctx context.Context, in PreferenceInput) (Preference, error) {
	p.createCall++
	return Preference{ID: "pref"}, p.createErr
}

func (p *countingProcessor) ExpirePreference(ctx context.Context, id string) error { return nil }

func testGuard() *reliability.Guard {
	return reliability.NewGuard(nil, nil, reliability.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	})
}

func TestReliableProcessor_RetriesReads(t *testing.T) {
	base := &countingProcessor{getErrs: []error{errors.New("503"), errors.New("503")}}
	p := NewReliableProcessor(base, testGuard())

	got, err := p.GetPayment(context.Background(), "1")
	if err != nil || got.Status != "approved" {
		t.Fatalf("unexpected result %+v, %v", got, err)
	}
	if base.getCalls != 3 {
		t.Fatalf("expected 3 calls, got %d", base.getCalls)
	}
}

func TestReliableProcessor_WebhookGetterFetchesOnce(t *testing.T) {
	base := &countingProcessor{getErrs: []error{errors.New("503")}}
	r := NewReconciler(NewReliableProcessor(base, testGuard()).WebhookGetter(), nil)

	if _, err := r.Reconcile(context.Background(), WebhookNotification{Type: KindPayment, DataID: "42"}); err == nil {
		t.Fatalf("expected fetch error")
	}
	if base.getCalls != 1 {
		t.Fatalf("expected a single fetch, got %d", base.getCalls)
	}
}

func TestReliableProcessor_DoesNotRetryCreate(t *testing.T) {
	base := &countingProcessor{createErr: errors.New("timeout")}
	p := NewReliableProcessor(base, testGuard())

	_, err := p.CreatePreference(context.Background(), PreferenceInput{
		OrderID: "o",
		Items:   []LineItem{{Title: "x", Quantity: 1, UnitPrice: 1}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if base.createCall != 1 {
		t.Fatalf("expected 1 call, got %d", base.createCall)
	}
}
