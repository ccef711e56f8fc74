package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that map failures to responses.
type Kind int

const (
	// KindValidation marks malformed input (empty title, rating out of range).
	KindValidation Kind = iota
	// KindNotFound marks a referenced entity that does not exist.
	KindNotFound
	// KindConflict marks duplicates (role already assigned, code collision
	// retries exhausted).
	KindConflict
	// KindInvariant marks operations that would break a system invariant
	// (removing the last admin, revoking one's own admin role).
	KindInvariant
	// KindForbidden marks an action the acting user is not allowed to take
	// (editing someone else's question, revising someone else's review).
	KindForbidden
	// KindPersistence marks an underlying storage failure.
	KindPersistence
)

// Error is a typed application error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a malformed-input error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound creates a missing-entity error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict creates a duplicate/exhaustion error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// Invariant creates an invariant-violation error.
func Invariant(format string, args ...any) *Error {
	return &Error{Kind: KindInvariant, Msg: fmt.Sprintf(format, args...)}
}

// Forbidden creates a not-allowed error.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

// Persistence wraps an underlying storage failure.
func Persistence(err error, format string, args ...any) *Error {
	return &Error{Kind: KindPersistence, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindPersistence for
// untyped errors so storage failures are never silently downgraded.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsNotFound reports whether err is a missing-entity error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsConflict reports whether err is a duplicate error.
func IsConflict(err error) bool { return Is(err, KindConflict) }

// IsInvariant reports whether err is an invariant violation.
func IsInvariant(err error) bool { return Is(err, KindInvariant) }

// IsValidation reports whether err is a malformed-input error.
func IsValidation(err error) bool { return Is(err, KindValidation) }

// IsForbidden reports whether err is a not-allowed error.
func IsForbidden(err error) bool { return Is(err, KindForbidden) }
