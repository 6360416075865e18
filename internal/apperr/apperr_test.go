package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindAndHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantKind   string
		wantStatus int
	}{
		{"nil", nil, "", http.StatusOK},
		{"validation", Validation("imageUrl", "must be a valid URL"), "validation", http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("sync: %w", Validation("email", "required")), "validation", http.StatusBadRequest},
		{"auth", Auth("invalid or expired token", errors.New("bad sig")), "auth", http.StatusUnauthorized},
		{"not found", fmt.Errorf("item: %w", ErrNotFound), "not_found", http.StatusNotFound},
		{"conflict", fmt.Errorf("item: %w", ErrConflict), "conflict", http.StatusConflict},
		{"unavailable", ErrUnavailable, "unavailable", http.StatusServiceUnavailable},
		{"service", &ServiceError{Service: "mercadopago", Op: "get payment", Err: errors.New("boom")}, "service", http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, "timeout", http.StatusGatewayTimeout},
		{"canceled", context.Canceled, "canceled", http.StatusBadRequest},
		{"internal", errors.New("boom"), "internal", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Kind(tt.err); got != tt.wantKind {
				t.Fatalf("Kind() = %q, want %q", got, tt.wantKind)
			}
			if got := HTTPStatus(tt.err); got != tt.wantStatus {
				t.Fatalf("HTTPStatus() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestServiceDoesNotDoubleWrap(t *testing.T) {
	t.Parallel()

	inner := &ServiceError{Service: "azure-face", Op: "detect", Err: errors.New("429")}
	got := Service("face", "detect", inner)
	if got != inner {
		t.Fatalf("expected original service error, got %v", got)
	}
	if Service("x", "y", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestServiceErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ServiceError{Service: "mercadopago", Op: "get payment", Err: errors.New("timeout")}
	if err.Error() != "mercadopago get payment: timeout" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
