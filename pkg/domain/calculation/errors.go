package calculation

import (
	"errors"
	"fmt"
)

// Domain errors for the calculation engine.
var (
	// ErrValidation indicates rejected input. No state was mutated.
	ErrValidation = errors.New("validation failed")

	// ErrMissingPrerequisite indicates that neither an offer nor hour figures were
	// available for a derivation. It is a notice, not a failure.
	ErrMissingPrerequisite = errors.New("no offer and no hour figures available")

	// ErrRecomputeCoalesced indicates a recompute request arrived while the project
	// was already recomputing and was folded into the next cycle.
	ErrRecomputeCoalesced = errors.New("recompute coalesced into next cycle")

	// ErrProjectNotFound indicates the project is unknown to the project source.
	ErrProjectNotFound = errors.New("project not found")

	// ErrEmployeeNotFound indicates the employee is not assigned to the project.
	ErrEmployeeNotFound = errors.New("employee not assigned to project")

	// ErrInvariantViolated indicates column totals disagree with employee rows.
	ErrInvariantViolated = errors.New("post-calculation totals do not match employee rows")
)

// ValidationError reports a single rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is allows errors.Is to work with ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// MissingPrerequisiteError names the project that could not be planned yet.
type MissingPrerequisiteError struct {
	ProjectID string
}

func (e *MissingPrerequisiteError) Error() string {
	return "project " + e.ProjectID + ": " + ErrMissingPrerequisite.Error()
}

// Is allows errors.Is to work with MissingPrerequisiteError.
func (e *MissingPrerequisiteError) Is(target error) bool {
	return target == ErrMissingPrerequisite
}

// InvariantError describes which activity column drifted from the employee rows.
type InvariantError struct {
	ProjectID string
	Activity  ActivityType
	Column    string
	RowSum    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("project %s: %s column total %s != employee sum %s", e.ProjectID, e.Activity, e.Column, e.RowSum)
}

// Is allows errors.Is to work with InvariantError.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolated
}
