// Package errs defines the error taxonomy shared by every retrieval stage.
// Errors surface to the caller unchanged; no stage downgrades a failure
// into a partial or empty result.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the calling automation step.
type Kind string

const (
	// KindConnection covers transport and network failures, including
	// timeouts and unexpected HTTP statuses. Fatal, never retried here.
	KindConnection Kind = "connection"

	// KindAuth covers credential rejection by the management service.
	KindAuth Kind = "auth"

	// KindValidation covers bad input caught before any network call:
	// unknown object types, unknown expansion relationship names.
	KindValidation Kind = "validation"
)

// Error carries the taxonomy kind alongside the failing operation and a
// human-readable message.
type Error struct {
	Op   string // operation that failed, e.g. "smc.fetch"
	Kind Kind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s [%s]: %v", e.Op, e.Msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s [%s]", e.Op, e.Msg, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches against another *Error by kind, so callers can write
// errors.Is(err, &errs.Error{Kind: errs.KindAuth}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// Connection wraps a transport failure.
func Connection(op, msg string, err error) *Error {
	return &Error{Op: op, Kind: KindConnection, Msg: msg, Err: err}
}

// Auth wraps a credential rejection.
func Auth(op, msg string, err error) *Error {
	return &Error{Op: op, Kind: KindAuth, Msg: msg, Err: err}
}

// Validation reports bad input. Raised before any network call is made.
func Validation(op, msg string) *Error {
	return &Error{Op: op, Kind: KindValidation, Msg: msg}
}

// KindOf returns the taxonomy kind of err, or "" for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsConnection checks if an error is a connection failure.
func IsConnection(err error) bool {
	return KindOf(err) == KindConnection
}

// IsAuth checks if an error is a credential rejection.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

// IsValidation checks if an error is an input validation failure.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}
