package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid scheduling request")
	ErrMissingCoordinate   = errors.New("missing coordinate")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrInvalidRevert       = errors.New("invalid revert")
)

// InvalidRequestError reports empty or malformed input. It is fatal for the
// call and must not be retried with the same input.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrInvalidRequest, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrInvalidRequest, e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error { return ErrInvalidRequest }

// Invalid is a shorthand for building an InvalidRequestError.
func Invalid(field, format string, args ...any) error {
	return &InvalidRequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// MissingCoordinateError is raised per job when its location is unknown.
type MissingCoordinateError struct {
	JobID string
}

func (e *MissingCoordinateError) Error() string {
	return fmt.Sprintf("%v for job %s", ErrMissingCoordinate, e.JobID)
}

func (e *MissingCoordinateError) Unwrap() error { return ErrMissingCoordinate }

// ConstraintViolationError signals a broken internal invariant. It always
// indicates a bug in the engine.
type ConstraintViolationError struct {
	JobID  string
	TeamID string
	Rule   string
	Detail string
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("%v: rule %s job %s team %s: %s", ErrConstraintViolation, e.Rule, e.JobID, e.TeamID, e.Detail)
}

func (e *ConstraintViolationError) Unwrap() error { return ErrConstraintViolation }

// InvalidRevertError is returned when reverting a history entry that is not
// in the successful state or does not exist.
type InvalidRevertError struct {
	HistoryID string
	Outcome   HistoryOutcome
}

func (e *InvalidRevertError) Error() string {
	if e.Outcome == "" {
		return fmt.Sprintf("%v: history entry %s not found", ErrInvalidRevert, e.HistoryID)
	}
	return fmt.Sprintf("%v: history entry %s is %s", ErrInvalidRevert, e.HistoryID, e.Outcome)
}

func (e *InvalidRevertError) Unwrap() error { return ErrInvalidRevert }
