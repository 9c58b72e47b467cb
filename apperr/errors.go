// Package apperr holds the error kinds the loan engine reports and the
// user-facing message for each kind.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError is malformed or policy-violating input, detected
// before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports an overlapping live loan. LoanID and the range
// are empty when the store itself rejected the write.
type ConflictError struct {
	LoanID string
	Start  time.Time
	Due    time.Time
}

func (e *ConflictError) Error() string {
	if e.LoanID == "" {
		return "conflict: overlapping reservation"
	}
	return fmt.Sprintf("conflict: overlaps loan %s [%s, %s]",
		e.LoanID, e.Start.Format(time.DateOnly), e.Due.Format(time.DateOnly))
}

// StateTransitionError is a lifecycle guard violation. Guard names the
// violated condition, e.g. "not pending".
type StateTransitionError struct {
	Guard string
}

func (e *StateTransitionError) Error() string { return "transition refused: " + e.Guard }

func Refused(guard string) error { return &StateTransitionError{Guard: guard} }

// ConcurrencyError is a lock wait timeout or write conflict. The whole
// operation may be retried.
type ConcurrencyError struct {
	Op  string
	Err error
}

func (e *ConcurrencyError) Error() string { return fmt.Sprintf("%s: concurrent update: %v", e.Op, e.Err) }
func (e *ConcurrencyError) Unwrap() error { return e.Err }

// Retryable reports whether err is worth re-attempting as a whole.
func Retryable(err error) bool {
	var ce *ConcurrencyError
	return errors.As(err, &ce)
}

// Message maps err to the category message shown to users. Driver and
// lock details never appear in it.
func Message(err error) string {
	var (
		ve *ValidationError
		ce *ConflictError
		se *StateTransitionError
		cc *ConcurrencyError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		if ve.Field == "" {
			return "Invalid request: " + ve.Reason
		}
		return fmt.Sprintf("Invalid %s: %s", ve.Field, ve.Reason)
	case errors.As(err, &ce):
		if ce.LoanID == "" {
			return "The requested dates overlap an existing reservation for this asset."
		}
		return fmt.Sprintf("The requested dates overlap an existing reservation (%s to %s). Please choose other dates.",
			ce.Start.Format(time.DateOnly), ce.Due.Format(time.DateOnly))
	case errors.As(err, &se):
		return "This action is not allowed right now: " + se.Guard + "."
	case errors.As(err, &cc):
		return "The asset is busy with another update. Please try again."
	case errors.Is(err, ErrNotFound):
		return "Not found."
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to manage this organization's assets."
	default:
		return "Something went wrong. Please try again later."
	}
}
