package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("service unavailable")
)

// ValidationError reports malformed caller input. Never retried.
type ValidationError struct {
	Field   string
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "invalid input"
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	return msg
}

// Validation builds a ValidationError for a single field.
func Validation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ServiceError wraps a failure of an external collaborator (payment processor,
// vision API, database). Service names the collaborator, Op the call.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	default:
		return e.Service + " failed"
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Service wraps err as a ServiceError unless it already is one.
func Service(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	return &ServiceError{Service: service, Op: op, Err: err}
}

// AuthError reports an invalid, expired or missing credential.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unauthorized"
	}
	if e.Err != nil {
		return reason + ": " + e.Err.Error()
	}
	return reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Auth builds an AuthError.
func Auth(reason string, err error) *AuthError {
	return &AuthError{Reason: reason, Err: err}
}

func Kind(err error) string {
	var (
		validationErr *ValidationError
		authErr       *AuthError
		serviceErr    *ServiceError
	)
	switch {
	case err == nil:
		return ""

	case errors.As(err, &validationErr):
		return "validation"

	case errors.As(err, &authErr):
		return "auth"

	case errors.Is(err, ErrNotFound):
		return "not_found"

	case errors.Is(err, ErrConflict):
		return "conflict"

	case errors.Is(err, ErrUnavailable):
		return "unavailable"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	case errors.As(err, &serviceErr):
		return "service"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case "validation":
		return http.StatusBadRequest
	case "auth":
		return http.StatusUnauthorized
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "unavailable":
		return http.StatusServiceUnavailable
	case "timeout":
		return http.StatusGatewayTimeout
	case "canceled":
		return http.StatusBadRequest
	case "service":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
