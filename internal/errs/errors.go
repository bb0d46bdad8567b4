// Package errs provides the unified error type used across all of dbridge.
//
// Every subsystem (backend adapters, registry, server, …) wraps its native
// errors into *errs.Error before returning them to callers. Callers use the
// Is* predicates to handle errors without importing driver-specific packages.
//
// Usage:
//
//	// In an adapter — wrap native errors:
//	return errs.Wrap(errs.KindQueryFailed, "query failed", mysqlErr)
//
//	// In a handler — check error kind:
//	if errs.IsConnectionNotFound(err) {
//	    http.Error(w, "unknown connection", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
)

// Kind categorises an error without exposing backend-specific codes.
// All adapters (MySQL, Postgres, SQLite) map their native errors to one
// of these kinds, giving callers a single consistent API.
type Kind int

const (
	KindUnknown            Kind = iota
	KindUnsupportedBackend      // open given a backend kind nobody implements
	KindConnectFailed           // could not reach, authenticate to, or open the backend
	KindConnectionNotFound      // no live registry entry for the given id
	KindBackendError            // catalog / metadata query failure
	KindQueryFailed             // SQL execution error, message kept verbatim
	KindTimeout                 // context deadline / cancellation
	KindInvalidInput            // bad arguments from the caller
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedBackend:
		return "unsupported_backend"
	case KindConnectFailed:
		return "connect_failed"
	case KindConnectionNotFound:
		return "connection_not_found"
	case KindBackendError:
		return "backend_error"
	case KindQueryFailed:
		return "query_failed"
	case KindTimeout:
		return "timeout"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all dbridge subsystems.
// Adapters produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    Kind
	Message string
	Cause   error // original driver-level error, preserved for display
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
// The cause's text stays reachable through Error() and Unwrap(), so backend
// messages are never lost on the way up.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsUnsupportedBackend reports whether err names a backend kind dbridge
// does not implement.
func IsUnsupportedBackend(err error) bool {
	return KindOf(err) == KindUnsupportedBackend
}

// IsConnectFailed reports whether err is a connectivity, auth, or
// file-open failure raised while establishing a connection.
func IsConnectFailed(err error) bool {
	return KindOf(err) == KindConnectFailed
}

// IsConnectionNotFound reports whether err means the connection id has no
// live registry entry (never opened, or already closed).
func IsConnectionNotFound(err error) bool {
	return KindOf(err) == KindConnectionNotFound
}

// IsBackendError reports whether err is a catalog or metadata query failure.
func IsBackendError(err error) bool {
	return KindOf(err) == KindBackendError
}

// IsQueryFailed reports whether err is a SQL execution error.
func IsQueryFailed(err error) bool {
	return KindOf(err) == KindQueryFailed
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == KindInvalidInput
}

// KindOf extracts the Kind from any error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
