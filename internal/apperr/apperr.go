// Package apperr defines the error taxonomy shared by the order core and the HTTP layer.
// Every error carries a machine-readable Kind and a message that is safe to show callers.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindForbidden         Kind = "forbidden"
	KindUnauthenticated   Kind = "unauthenticated"
	KindConflict          Kind = "conflict"
	KindTimeout           Kind = "timeout"
	KindTransient         Kind = "transient_store"
)

type Error struct {
	Kind    Kind
	Message string
	// Resource and ID are set for not-found and stock errors.
	Resource string
	ID       string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can write errors.Is(err, &apperr.Error{Kind: apperr.KindNotFound}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Resource == "" || t.Resource == e.Resource)
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// EmptyOrder is returned when an order is submitted without line items.
func EmptyOrder() *Error {
	return &Error{Kind: KindValidation, Message: "no order items"}
}

func NotFound(resource, id string) *Error {
	return &Error{
		Kind:     KindNotFound,
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
		Resource: resource,
		ID:       id,
	}
}

func ProductNotFound(id string) *Error { return NotFound("product", id) }

func OrderNotFound(id string) *Error { return NotFound("order", id) }

func AffiliateNotFound(id string) *Error { return NotFound("affiliate", id) }

func InsufficientStock(productID, name string) *Error {
	return &Error{
		Kind:     KindInsufficientStock,
		Message:  fmt.Sprintf("not enough stock for %s", name),
		Resource: "product",
		ID:       productID,
	}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Message: "operation timed out", Err: err}
}

// Transient wraps an underlying persistence failure. The whole operation is safe to retry.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Message: op, Err: err}
}

// KindOf classifies any error. Context deadline errors map to KindTimeout and anything
// unrecognised is treated as a store failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransient
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInsufficientStock:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text shown to API callers. Store failures never leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindTransient {
		return e.Message
	}
	if KindOf(err) == KindTimeout {
		return "operation timed out"
	}
	return "internal error"
}
