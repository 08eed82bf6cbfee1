// Package apperr defines the typed error kinds surfaced across service and
// adapter boundaries, so the HTTP layer can map them to status codes with a
// single switch instead of a pile of errors.Is checks.
package apperr

import "fmt"

type Kind string

const (
	InvalidInput       Kind = "invalid_input"
	Unauthorized       Kind = "unauthorized"
	Forbidden          Kind = "forbidden"
	RateLimited        Kind = "rate_limited"
	StoreUnavailable   Kind = "store_unavailable"
	MatcherUnavailable Kind = "matcher_unavailable"
	Conflict           Kind = "conflict"
	NotFound           Kind = "not_found"
)

// Error wraps a cause with a Kind and, for InvalidInput, the offending field.
type Error struct {
	Kind  Kind
	Field string
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, cause: cause}
}

// Invalid builds an InvalidInput error naming the offending field.
func Invalid(field, msg string) *Error {
	return &Error{Kind: InvalidInput, Field: field, msg: msg}
}

// Of reports the Kind of err, defaulting to "" (not an *Error) when err is
// nil or not of this package's type.
func Of(err error) Kind {
	var e *Error
	if err == nil {
		return ""
	}
	if ae, ok := err.(*Error); ok {
		e = ae
	}
	if e == nil {
		return ""
	}
	return e.Kind
}

func Is(err error, kind Kind) bool {
	return Of(err) == kind
}
