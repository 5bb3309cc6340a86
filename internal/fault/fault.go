// internal/fault/fault.go
// Package fault defines the single error type that crosses package boundaries in kwdriver.
// Every failure is tagged with a Kind so callers can branch on it (validation vs. timeout vs.
// fatal) without a deep hierarchy of error types.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindFatal is any error the framework did not expect. It aborts waits immediately.
	KindFatal Kind = iota
	// KindValidation marks caller misuse: missing arguments, non-positive timeouts or retry counts.
	KindValidation
	// KindTransient marks "not ready yet" conditions that are absorbed while polling.
	KindTransient
	// KindTimeout marks an exceeded polling deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	default:
		return "fatal"
	}
}

// Error is the framework error. It carries a Kind, a human readable message and the
// underlying cause, which stays reachable through errors.Is and errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Kinder is implemented by error types outside this package that know their own Kind,
// such as the wait engine's timeout error.
type Kinder interface {
	FaultKind() Kind
}

// New creates an error of the given kind without a cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps cause with a message. A nil cause returns nil.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Validation is shorthand for New(KindValidation, ...).
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// Normalize wraps err in an *Error that keeps err's kind. Used at the boundary where any error
// becomes the single framework error.
func Normalize(err error, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return Wrap(KindOf(err), err, format, args...)
}

// KindOf reports the kind of err by walking its chain. The outermost *Error or Kinder wins,
// so a timeout that wraps a transient cause is still a timeout. Errors joined with several %w
// verbs are searched in order.
// Anything unclassified, including context cancellation, is fatal.
func KindOf(err error) Kind {
	if k, ok := kindOf(err); ok {
		return k
	}
	return KindFatal
}

func kindOf(err error) (Kind, bool) {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Kind, true
		case Kinder:
			return e.FaultKind(), true
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				if k, ok := kindOf(inner); ok {
					return k, true
				}
			}
			return 0, false
		}
		err = errors.Unwrap(err)
	}
	return 0, false
}

// IsKind reports whether err is of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool { return IsKind(err, KindTimeout) }

// IsTransient reports whether err is transient.
func IsTransient(err error) bool { return IsKind(err, KindTransient) }

// RequireNonEmpty returns a validation error naming the argument when value is empty.
func RequireNonEmpty(name, value string) error {
	if value == "" {
		return Validation("%s is required", name)
	}
	return nil
}
