/*
errors.go - Centralized error taxonomy for the roster engine

PURPOSE:
  All error kinds in one place so every layer classifies failures the same
  way. Four categories:

  1. Input errors       - rejected before anything is applied
  2. Not-found warnings - a reversal's target ledger row is missing
  3. Consistency errors - one dependent write landed, another failed
  4. Concurrency errors - two mutations raced for the same employee/date

USAGE:
  Callers branch with errors.Is / errors.As:

    if errors.Is(err, rota.ErrConcurrentModification) {
        // re-read and retry
    }

SEE ALSO:
  - duty package: Raises all four kinds
  - calendar package: Raises only input errors
*/
package rota

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is the root of all pre-validation rejections.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRecordNotFound is returned when an expected ledger row is missing.
	ErrRecordNotFound = errors.New("record not found")

	// ErrConcurrentModification is returned when optimistic locking detects
	// that another call won the race for the same employee/date.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrPartialApply is returned when the override write succeeded but a
	// dependent ledger write did not.
	ErrPartialApply = errors.New("partially applied")
)

// =============================================================================
// STRUCTURED ERRORS - Carry context for callers and logs
// =============================================================================

// InputError rejects malformed input before any resolution or mutation.
type InputError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// NotFoundError reports a missing ledger row during a reversal. The caller
// skips the reversal step and surfaces this as a data-integrity warning.
type NotFoundError struct {
	Kind       string // e.g. "in_lieu_record", "overtime_record"
	EmployeeID string
	Date       TimePoint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found for %s on %s", e.Kind, e.EmployeeID, e.Date)
}

func (e *NotFoundError) Unwrap() error { return ErrRecordNotFound }

// ConsistencyError reports a dependent-write failure after the override row
// was committed. Carries what succeeded and what is left for retry.
type ConsistencyError struct {
	EmployeeID string
	Date       TimePoint
	Applied    []string // steps that committed
	Failed     string   // the step that did not
	Cause      error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("partial apply for %s on %s: %s failed after %v: %v",
		e.EmployeeID, e.Date, e.Failed, e.Applied, e.Cause)
}

func (e *ConsistencyError) Unwrap() error { return ErrPartialApply }

// ConcurrencyError reports a lost optimistic-concurrency race.
type ConcurrencyError struct {
	EmployeeID string
	Date       TimePoint
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrent modification for %s on %s", e.EmployeeID, e.Date)
}

func (e *ConcurrencyError) Unwrap() error { return ErrConcurrentModification }

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry with fresh
// reads. Both race losses and partial applies are retryable by contract.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrPartialApply)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
