package progress

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrRosterUnavailable is matched by every *RosterUnavailableError.
	ErrRosterUnavailable = errors.New("roster unavailable")
)

// NotFoundError reports a query for an unknown cohort or mission.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports a referential or shape violation found while
// ingesting records. It is fatal to the computation that hit it.
type ValidationError struct {
	Kind   string
	ID     any
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %v: %s: %v", e.Kind, e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Kind, e.ID, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// RosterUnavailableError means only the headcount of a cohort is known, not
// the individual student ids.
type RosterUnavailableError struct {
	CohortID int64
}

func (e *RosterUnavailableError) Error() string {
	return fmt.Sprintf("roster identities for cohort %d are not available", e.CohortID)
}

func (e *RosterUnavailableError) Is(target error) bool {
	return target == ErrRosterUnavailable
}

func cohortNotFound(id int64) error {
	return &NotFoundError{Kind: "cohort", ID: id}
}

func missionNotFound(id int64) error {
	return &NotFoundError{Kind: "mission", ID: id}
}
