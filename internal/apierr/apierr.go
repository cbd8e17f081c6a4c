// Package apierr centralizes the error taxonomy every internal
// package surfaces at its boundary — NotFound, InvalidInput, Conflict,
// Unauthorized, Internal, External, Pending — and maps it onto HTTP
// status codes through internal/httputil, so handlers in internal/api
// don't each reinvent their own status-code switch.
package apierr

import (
	"errors"
	"net/http"

	"github.com/streamvault/streamvault/internal/httputil"
)

// Kind is the taxonomy tag. Handlers and background workers classify
// failures into one of these rather than passing raw errors to the
// edge.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindInternal     Kind = "internal"
	KindExternal     Kind = "external"
	KindPending      Kind = "pending"
)

// Error pairs a Kind with a message and an optional wrapped cause.
// Kind drives both the HTTP status mapping and the queue's retry
// decision (External is retryable, InvalidInput is not).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around an existing
// error, preserving it for errors.Is/As and for logging.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(message string) *Error     { return New(KindNotFound, message) }
func InvalidInput(message string) *Error { return New(KindInvalidInput, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Internal(cause error) *Error        { return Wrap(KindInternal, "internal error", cause) }
func External(message string, cause error) *Error {
	return Wrap(KindExternal, message, cause)
}
func Pending(message string) *Error { return New(KindPending, message) }

// Retryable reports whether a queue worker should retry the job that
// produced err rather than dead-letter it immediately. External
// failures (a muxer crash, a provider timeout) are transient by
// nature; InvalidInput never becomes valid on retry.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindExternal
	}
	return false
}

// statusFor maps a Kind to the HTTP status internal/api should
// respond with.
func statusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindExternal:
		return http.StatusBadGateway
	case KindPending:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes err to w via internal/httputil.WriteError, mapping
// its Kind to a status code. Errors that aren't *Error are treated as
// Internal. Pending responses additionally set Retry-After so clients
// back off instead of hammering a resource mid-build.
func WriteHTTP(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal(err)
	}
	if e.Kind == KindPending {
		w.Header().Set("Retry-After", "2")
	}
	httputil.WriteError(w, statusFor(e.Kind), string(e.Kind), e.Message)
}
