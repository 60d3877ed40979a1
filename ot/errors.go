/*
errors.go - Error taxonomy for the OT engine

PURPOSE:
  Every failure is a typed value returned to the caller. Nothing in this
  package panics on bad input and no failure mutates a record.

ERROR CATEGORIES:
  1. InvalidTransition   - state/role/target combination not in the table
  2. SubmissionWindow    - work date outside the claimable window
  3. InvalidRateInput    - non-positive hours or salary, unknown day type
  4. Persistence         - not found, concurrent modification (retryable)
  5. Request input       - missing fields, not owner, not resubmittable

USAGE:
  if errors.Is(err, ot.ErrConcurrentModification) {
      // re-read and retry
  }
  var te *ot.InvalidTransitionError
  if errors.As(err, &te) { ... te.Required ... }

SEE ALSO:
  - calendar/consolidate.go: ErrConsolidationKeyCollision lives with the consolidator
*/
package ot

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrSubmissionWindow  = errors.New("submission window violation")

	// ErrInvalidRateInput matches every rate input failure; the three causes
	// below tell them apart.
	ErrInvalidRateInput  = errors.New("invalid rate input")
	ErrNonPositiveHours  = errors.New("hours worked must be greater than zero")
	ErrNonPositiveSalary = errors.New("basic salary must be greater than zero")
	ErrUnknownDayType    = errors.New("unknown day type")

	// ErrRequestNotFound is returned by stores for a missing id.
	ErrRequestNotFound = errors.New("request not found")

	// ErrConcurrentModification means the stored status no longer matches the
	// status the caller read. Re-read and retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	ErrDuplicateRequest   = errors.New("request already exists")
	ErrNotResubmittable   = errors.New("only rejected requests can be resubmitted")
	ErrAlreadyResubmitted = errors.New("request has already been resubmitted")
	ErrNotAmendable       = errors.New("request can only be amended before the first review")
	ErrNotOwner           = errors.New("request belongs to another employee")
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmptyBatch         = errors.New("batch contains no request ids")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvalidTransitionError names the current state, the attempted target and the
// role the table requires for that edge (RoleNone when no such edge exists).
type InvalidTransitionError struct {
	RequestID string
	Route     Route
	From      Status
	To        Status
	Role      Role
	Required  Role
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s by %s (requires %s)",
		e.From, e.To, e.Role, e.Required)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// WindowViolationError is returned when a work date may not be claimed.
type WindowViolationError struct {
	WorkDate time.Time
	Today    time.Time
	Reason   string
}

func (e *WindowViolationError) Error() string {
	return fmt.Sprintf("cannot submit overtime for %s: %s",
		e.WorkDate.Format(dateLayout), e.Reason)
}

func (e *WindowViolationError) Unwrap() error { return ErrSubmissionWindow }

// RateInputError carries the specific cause and also matches ErrInvalidRateInput.
type RateInputError struct {
	Field string
	Value string
	Cause error
}

func (e *RateInputError) Error() string {
	return fmt.Sprintf("%s: %s=%s", e.Cause, e.Field, e.Value)
}

func (e *RateInputError) Unwrap() []error { return []error{ErrInvalidRateInput, e.Cause} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed after a re-read.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrSubmissionWindow) ||
		errors.Is(err, ErrInvalidRateInput) ||
		errors.Is(err, ErrNotResubmittable) ||
		errors.Is(err, ErrAlreadyResubmitted) ||
		errors.Is(err, ErrNotAmendable) ||
		errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyBatch)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrRequestNotFound)
}
