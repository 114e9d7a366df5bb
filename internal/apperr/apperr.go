// ABOUTME: Typed error kinds for the gate taxonomy shared by the REST API and MCP gateway
// ABOUTME: Maps each kind to an HTTP status and keeps internal detail out of client messages

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for response mapping.
type Kind int

const (
	// KindInternal is an unexpected failure. Detail is logged server-side
	// and never surfaced to the caller.
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindInvalidArgument
	KindTooManyRequests
)

// Error carries a kind and a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	err     error // wrapped cause, server-side only
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.err }

// New creates an error of the given kind with a client-safe message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error. The cause is kept for logging but
// excluded from the client message.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), err: cause}
}

// Unauthorized builds a credential failure.
func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

// Forbidden builds an ownership violation.
func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

// NotFound builds a missing-tool or missing-resource failure.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// InvalidArgument builds a shape or type violation.
func InvalidArgument(format string, args ...any) *Error {
	return New(KindInvalidArgument, format, args...)
}

// TooManyRequests builds a throttling failure.
func TooManyRequests(format string, args ...any) *Error {
	return New(KindTooManyRequests, format, args...)
}

// Internal wraps an unexpected failure. The client message is generic.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", err: cause}
}

// KindOf extracts the kind from err, defaulting to KindInternal for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ClientMessage returns the message safe to surface to the caller.
// Unclassified errors collapse to a generic message.
func ClientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
