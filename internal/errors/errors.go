// Package errors provides the error taxonomy used across the billing engine.
// Errors are built with the fluent builder in builder.go and classified by
// marking them with one of the sentinel errors below, so callers can branch
// with errors.Is / the Is* helpers without string matching.
package errors

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrValidation marks malformed input, unknown codes, and quota/limit
	// failures that carry a tenant-facing message.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks lookups of unknown entities.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists marks uniqueness conflicts detected before any write.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidOperation marks illegal state transitions and conflicting
	// in-flight operations. The message includes the current state so the
	// caller can resynchronize.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrDatabase marks unexpected store failures. Operations marked with it
	// have been fully rolled back and are safe to retry as a whole.
	ErrDatabase = errors.New("database error")

	// ErrPermissionDenied marks actions the actor is not allowed to perform.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInternal marks everything else.
	ErrInternal = errors.New("internal error")
)

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

func IsDatabase(err error) bool {
	return errors.Is(err, ErrDatabase)
}

func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
