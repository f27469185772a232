// Package apperr defines the stable error taxonomy shared by every
// component of the identity core. Kind names are part of the external
// contract (spec section 7): they appear verbatim in HTTP error bodies
// and CLI output, so they must never be renamed casually.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the stable error kinds from the API error taxonomy.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindNotReady       Kind = "not_ready"
	KindFrozen         Kind = "frozen"
	KindBusy           Kind = "busy"
	KindDependency     Kind = "dependency"
	KindInvalidRequest Kind = "invalid_request"
	KindInternal       Kind = "internal"
)

// Error wraps an underlying cause with a stable Kind and optional
// structured Details (e.g. blocking_reasons, holder session id).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, apperr.NotFound) style sentinel comparisons
// by comparing Kind rather than identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not_found error.
func NotFound(format string, args ...any) *Error { return newErr(KindNotFound, format, args...) }

// Conflict builds a conflict error (uniqueness / invariant violation).
func Conflict(format string, args ...any) *Error { return newErr(KindConflict, format, args...) }

// NotReady builds a not_ready error carrying blocking_reasons.
func NotReady(reasons []string) *Error {
	e := newErr(KindNotReady, "axial write refused: ontology not ready")
	e.Details = map[string]any{"blocking_reasons": reasons}
	return e
}

// Frozen builds a frozen error.
func Frozen(format string, args ...any) *Error { return newErr(KindFrozen, format, args...) }

// Busy builds a busy error, optionally naming the lock holder's session.
func Busy(holderSessionID string) *Error {
	e := newErr(KindBusy, "advisory lock held")
	if holderSessionID != "" {
		e.Details = map[string]any{"session_id": holderSessionID}
	}
	return e
}

// Dependency builds a dependency error (external store transient failure).
func Dependency(cause error, format string, args ...any) *Error {
	e := newErr(KindDependency, format, args...)
	e.cause = cause
	return e
}

// InvalidRequest builds an invalid_request error.
func InvalidRequest(format string, args ...any) *Error {
	return newErr(KindInvalidRequest, format, args...)
}

// Internal builds an internal error, wrapping an unclassified cause.
func Internal(cause error, format string, args ...any) *Error {
	e := newErr(KindInternal, format, args...)
	e.cause = cause
	return e
}

// Wrap classifies a generic error as internal unless it is already an
// *Error, in which case it is returned unchanged. Use at package
// boundaries where a lower layer may return either.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err, "unclassified error")
}

// KindOf extracts the Kind of err, defaulting to KindInternal if err is
// not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the HTTP status code spec section 7 mandates.
func HTTPStatus(k Kind) int {
	switch k {
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindNotReady:
		return 409
	case KindFrozen:
		return 423
	case KindBusy:
		return 409
	case KindDependency:
		return 503
	case KindInvalidRequest:
		return 400
	default:
		return 500
	}
}

// Retryable reports whether clients may safely retry an error of this
// kind using the original idempotency key, per spec section 7.
func Retryable(k Kind) bool {
	switch k {
	case KindBusy, KindDependency, KindInternal:
		return true
	default:
		return false
	}
}
