// Package apierror defines the typed error taxonomy shared by the
// gateway, the session manager, and the endpoint clients.
//
// Every failure that crosses a package boundary in this module is an
// *apierror.Error with a Kind from the closed set below. Callers branch
// on kind with the Is* helpers (or errors.As) rather than string
// matching.
package apierror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindNetwork covers transport failures: connection refused, DNS,
	// timeouts, aborted requests, and CSRF token acquisition failures.
	KindNetwork Kind = iota

	// KindAuthentication means the server rejected the presented
	// credentials at login.
	KindAuthentication

	// KindSessionExpired means a session check failed: the cookie is
	// missing, stale, or no longer recognized by the server.
	KindSessionExpired

	// KindValidation is a 4xx with structured field errors, for
	// example a duplicate username on user creation.
	KindValidation

	// KindServer is a 5xx, or any failure body that could not be
	// parsed into something more specific.
	KindServer
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuthentication:
		return "authentication"
	case KindSessionExpired:
		return "session_expired"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// FieldError is one entry of a structured error body, as emitted by the
// backend's `{"errors":[{"title":...,"detail":...}]}` shape.
type FieldError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Error is the typed error carried across package boundaries.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Status is the HTTP status code, 0 when no response was received.
	Status int

	// Message is always non-empty and suitable for display.
	Message string

	// Fields holds structured validation errors, if the server sent any.
	Fields []FieldError

	// Err is the underlying cause (transport error, parse error), if any.
	Err error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Network builds a transport-level error wrapping cause.
func Network(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: cause}
}

// Authentication builds a bad-credentials error.
func Authentication(status int, message string) *Error {
	return &Error{Kind: KindAuthentication, Status: status, Message: message}
}

// SessionExpired builds a failed-session-check error.
func SessionExpired(status int, message string) *Error {
	return &Error{Kind: KindSessionExpired, Status: status, Message: message}
}

// Validation builds a structured 4xx error.
func Validation(status int, message string, fields []FieldError) *Error {
	return &Error{Kind: KindValidation, Status: status, Message: message, Fields: fields}
}

// Server builds a 5xx or unparseable-body error.
func Server(status int, message string) *Error {
	return &Error{Kind: KindServer, Status: status, Message: message}
}

// KindOf returns the kind of err and true when err is (or wraps) an
// *Error, otherwise (0, false).
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

func isKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool { return isKind(err, KindNetwork) }

// IsAuthentication reports whether err is a credential rejection.
func IsAuthentication(err error) bool { return isKind(err, KindAuthentication) }

// IsSessionExpired reports whether err is a failed session check.
func IsSessionExpired(err error) bool { return isKind(err, KindSessionExpired) }

// IsValidation reports whether err carries structured field errors.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsServer reports whether err is a server-side failure.
func IsServer(err error) bool { return isKind(err, KindServer) }
