package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an operation is not legal from the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrNotFound is returned when the purchase request (or a sub-resource) does not exist
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the actor's role or ownership does not satisfy the guard
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned when required input is missing or invalid
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a concurrent modification was detected
	ErrConflict = errors.New("concurrent modification")

	// ErrDependency is returned when storage or another collaborator is unavailable
	ErrDependency = errors.New("dependency failure")
)

// TransitionError reports an operation attempted from a state that does not permit it.
// Current is the actual state so callers can refresh.
type TransitionError struct {
	Trigger Trigger
	Current State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot fire %s from state %s", ErrInvalidTransition, e.Trigger, e.Current)
}

// Is makes errors.Is(err, ErrInvalidTransition) succeed
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ForbiddenError reports a guard violation
type ForbiddenError struct {
	Trigger Trigger
	Role    Role
	Reason  string
}

func (e *ForbiddenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", ErrForbidden, e.Reason)
	}
	return fmt.Sprintf("%s: role %s may not %s", ErrForbidden, e.Role, e.Trigger)
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// ValidationError names the offending input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// taxonomy lists the failures callers are expected to branch on
var taxonomy = []error{
	ErrNotFound,
	ErrInvalidTransition,
	ErrForbidden,
	ErrValidation,
	ErrConflict,
	ErrDependency,
	ErrGuardFailed,
}

// Classify keeps typed failures as they are and wraps anything else
// (driver errors, commit failures, blob store errors) in ErrDependency.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range taxonomy {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrDependency, err)
}
