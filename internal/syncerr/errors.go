// Package syncerr classifies synchronization failures so callers can
// decide between retrying, surfacing to the user, and pausing sync.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind is the failure class of a sync error.
type Kind string

const (
	// KindTransient covers timeouts, dropped connections and 5xx
	// responses. Safe to retry with backoff.
	KindTransient Kind = "transient"
	// KindValidation covers semantic rejections (4xx). Retrying the
	// same payload can never succeed.
	KindValidation Kind = "validation"
	// KindConflict means the server holds a newer version than the
	// submitted base. Requires policy resolution or user input.
	KindConflict Kind = "conflict"
	// KindAuth means the bearer token was rejected. Sync pauses until
	// re-authentication.
	KindAuth Kind = "auth"
	// KindStorage covers local persistence failures. Fatal for the
	// affected entry; must not block other entries.
	KindStorage Kind = "storage"
)

// Error is a classified sync failure.
type Error struct {
	Kind      Kind
	Op        string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable network-class failure.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Err: err, Retryable: true}
}

// Validation wraps err as a terminal semantic failure.
func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// Conflict wraps err as a version-divergence failure.
func Conflict(op string, err error) *Error {
	return &Error{Kind: KindConflict, Op: op, Err: err}
}

// Auth wraps err as an authentication failure.
func Auth(op string, err error) *Error {
	return &Error{Kind: KindAuth, Op: op, Err: err}
}

// Storage wraps err as a local persistence failure.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// IsRetryable reports whether err carries a retryable classification.
// Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// KindOf returns the classification of err, or the empty Kind when err
// is not a classified sync error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
