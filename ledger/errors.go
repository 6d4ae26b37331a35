/*
errors.go - Centralized error types for the ledger engine

PURPOSE:

	All error categories in one place. Workflow packages wrap these with
	additional context; the API layer maps them to HTTP status codes.

ERROR CATEGORIES:
 1. Unauthenticated   - no signed-in caller
 2. Validation        - business rule violations, detected in the read
    phase before any write is attempted
 3. NotFound          - order/demo/asset missing
 4. ConcurrencyConflict - a conditional write lost a race
 5. Store errors      - persistence-level failures

USAGE:

	if errors.Is(err, ledger.ErrValidation) { ... }

	var conflict *ledger.ConflictError
	if errors.As(err, &conflict) { retry or surface conflict.Serial }

SEE ALSO:
  - store.go: Conditional writes returning ConflictError
  - fulfillment: workflows producing these errors
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnauthenticated is returned when an operation runs without a
	// signed-in caller.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrValidation is the base of all precondition failures: duplicate
	// order/demo number, empty selection, unavailable item, bad date.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced order, demo, or asset
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrencyConflict is returned when a conditional write observes
	// a state other than the one the read phase validated against.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDuplicateTransactionID is returned by stores when an entry with
	// the same transaction_id already exists.
	ErrDuplicateTransactionID = errors.New("duplicate transaction id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a precondition failure with enough context for
// the caller to cite the offending field or serial.
type ValidationError struct {
	Field   string // e.g. "order_number", "items"
	Serial  string // set when a specific serial caused the failure
	Message string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Serial != "":
		return fmt.Sprintf("%s: %s (serial %s)", e.Field, e.Message, e.Serial)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	default:
		return e.Message
	}
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError identifies which record was missing.
type NotFoundError struct {
	Kind string // "asset", "order", "demo", "entry"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a lost race on a conditional asset write.
type ConflictError struct {
	Serial   string
	Expected AssetStatus
	Actual   AssetStatus
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("serial %s: expected status %s, found %s", e.Serial, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrencyConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
