// Package apperr defines the error taxonomy shared by the payment,
// fulfillment, and API layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP mapping and caller handling.
type Kind int

const (
	// Internal is an unexpected server-side error. Surfaced generically.
	Internal Kind = iota
	// Validation is malformed or missing caller input.
	Validation
	// Authorization is a role or ownership failure.
	Authorization
	// NotFound means the subject, intent, or profile does not exist.
	NotFound
	// Conflict means the request collides with current state
	// (already joined, already paid, live intent exists).
	Conflict
	// PaymentVerification is a gateway signature mismatch. The only error
	// kind that also transitions local state (intent -> failed).
	PaymentVerification
	// PostPaymentFulfillment means payment was captured but the side
	// effects could not complete (e.g. stock vanished). Never to be
	// conflated with a verification failure; requires reconciliation.
	PostPaymentFulfillment
)

// Error is a kinded error with an operator-facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain. Unrecognized errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error kind to its response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation, PaymentVerification:
		return http.StatusBadRequest
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict, PostPaymentFulfillment:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show callers. Internal errors
// are replaced with a generic message so details never leak.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal {
		return e.Message
	}
	return "internal server error"
}
