package autherr

import (
	"errors"
	"fmt"
)

// Kind classifies authentication and dispatch failures so callers can
// distinguish retryable transport problems from credential problems.
type Kind string

const (
	// Unauthenticated indicates no credential or a malformed credential
	// was presented. Retrying without a fresh credential cannot succeed.
	Unauthenticated Kind = "unauthenticated"

	// Expired indicates a credential was presented but is past its
	// validity window.
	Expired Kind = "expired"

	// ExchangeFailed indicates the identity provider rejected or could
	// not process an authorization code. Codes are single-use, so the
	// exchange is never retried.
	ExchangeFailed Kind = "exchange_failed"

	// BackendFailed indicates a calendar backend operation failed.
	BackendFailed Kind = "backend_failed"

	// StoreUnavailable indicates the credential store is unreachable.
	// This is transient and distinct from an authentication failure.
	StoreUnavailable Kind = "store_unavailable"
)

// Error is a classified authentication error. It carries the failure
// kind, a human-readable message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same kind, so
// errors.Is(err, autherr.New(autherr.Expired, "")) matches on kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrapf creates a classified error around a cause with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err if it is (or wraps) an *Error,
// or an empty kind otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
