// Package apierr defines the closed failure taxonomy shared by every call to
// the Benkinet backend. Transport code classifies raw failures into a Kind
// once; everything above it switches on the Kind instead of re-inspecting
// status codes or error strings.
package apierr

import "errors"

// Kind is the classified failure category. The set is closed: callers may
// switch exhaustively over these values.
type Kind string

const (
	Network      Kind = "network"      // no response received at all
	Timeout      Kind = "timeout"      // request aborted by deadline
	ServerError  Kind = "server_error" // 500, 502, 503, 504
	Unauthorized Kind = "unauthorized" // 401
	Forbidden    Kind = "forbidden"    // 403
	NotFound     Kind = "not_found"    // 404
	Validation   Kind = "validation"   // 422
	Unknown      Kind = "unknown"      // anything else
)

// Error is a classified backend failure. Message is always non-empty and
// suitable for display.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int // 0 when no response was received
	cause      error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a classified error with no underlying cause.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = defaultMessage(kind)
	}
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error keeping cause in the chain for errors.Is.
func Wrap(cause error, kind Kind, message string) *Error {
	e := New(kind, message)
	e.cause = cause
	return e
}

// KindOf extracts the Kind from an error chain, defaulting to Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func defaultMessage(kind Kind) string {
	switch kind {
	case Network:
		return "could not reach the server"
	case Timeout:
		return "the request timed out"
	case ServerError:
		return "the server failed to process the request"
	case Unauthorized:
		return "session expired or credentials rejected"
	case Forbidden:
		return "not allowed for the current role"
	case NotFound:
		return "the requested resource does not exist"
	case Validation:
		return "the request was rejected as invalid"
	default:
		return "something went wrong"
	}
}
