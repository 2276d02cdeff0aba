// Package apperr defines the application error taxonomy. Handlers translate
// these categories to HTTP status codes in one place, so repository and service
// code can return errors without knowing about HTTP.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping
type Kind int

const (
	// KindUnknown maps to 500
	KindUnknown Kind = iota
	// KindValidation maps to 400: malformed or out-of-range input
	KindValidation
	// KindAuthentication maps to 401: missing or invalid session
	KindAuthentication
	// KindAuthorization maps to 403: authenticated but not permitted
	KindAuthorization
	// KindNotFound maps to 404
	KindNotFound
	// KindConflict maps to 409: uniqueness or state conflicts
	KindConflict
	// KindProvider maps to 502: an upstream fitness provider failed
	KindProvider
	// KindRateLimited maps to 429
	KindRateLimited
)

// Error carries a kind, a safe user-facing message, and an optional wrapped cause
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

// New creates an error with a kind and message
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and safe message to an underlying error
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindUnknown for plain errors
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// MessageOf returns the safe user-facing message, or a generic one for plain
// errors so internal details never reach clients
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
