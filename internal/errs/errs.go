// Package errs defines the dispatch error taxonomy. Components return
// these as structured values; the HTTP layer maps them to status codes.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound: the referenced order does not exist. Non-retryable.
	ErrOrderNotFound = errors.New("order not found")

	// ErrNoEligibleDrivers: every radius step came back empty. A fresh
	// search may succeed later; this call will not.
	ErrNoEligibleDrivers = errors.New("no eligible drivers")

	// ErrAssignmentConflict: the conditional availability update lost a
	// race. The caller should advance to the next ranked candidate.
	ErrAssignmentConflict = errors.New("assignment conflict")

	// ErrInvalidInput: malformed coordinates or identifiers. Fix the call
	// site; retrying the same request cannot succeed.
	ErrInvalidInput = errors.New("invalid input")
)

// Persistence wraps a transient store error so callers can detect the
// class with errors.Is while keeping the cause in the chain.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

var ErrPersistence = errors.New("persistence failure")

// Invalid tags a validation failure with field context.
func Invalid(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidInput, field, reason)
}
