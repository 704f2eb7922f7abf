// Package errs defines the closed error-kind taxonomy used across the
// engine instead of ad-hoc sentinel errors or string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of retry policy, HTTP status
// mapping and job-failure handling. It is a closed set — callers should
// never compare errors by substring, only via Is/As against a *Error.
type Kind int

const (
	// Unknown is never returned by engine code; it is the zero value used
	// when wrapping a third-party error that hasn't been classified yet.
	Unknown Kind = iota
	// Validation marks a caller/input mistake. Never retried.
	Validation
	// Authorization marks a missing or insufficient principal. Never retried.
	Authorization
	// Transient marks a failure expected to clear on its own (provider
	// timeout, connection reset). Safe to retry with backoff.
	Transient
	// ResourceExhausted marks a quota or capacity limit (rate limit, pool
	// exhaustion, backpressure). Retried with backoff, typically longer.
	ResourceExhausted
	// Invariant marks a broken domain invariant. Never retried; indicates a
	// bug or corrupted state that needs operator attention.
	Invariant
	// Zombie marks an operation against state that has already moved on
	// (a session that finalized, a job whose dependency already failed).
	// Never retried, never surfaced as a failure to the caller.
	Zombie
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authorization:
		return "authorization"
	case Transient:
		return "transient"
	case ResourceExhausted:
		return "resource_exhausted"
	case Invariant:
		return "invariant"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// Error is the engine's wrapped error type. It carries a Kind, a
// human-readable message and an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or anything it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err, or Unknown if err isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Retryable reports whether the policy for k is to retry with backoff.
func Retryable(k Kind) bool {
	switch k {
	case Transient, ResourceExhausted:
		return true
	default:
		return false
	}
}
