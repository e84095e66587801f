package types

import (
	"errors"
	"fmt"
)

// NotFoundError indicates that a referenced entity does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFoundError checks if the error is or wraps a NotFoundError
func IsNotFoundError(err error) bool {
	var notFoundErr *NotFoundError
	return err != nil && errors.As(err, &notFoundErr)
}

// ValidationError indicates a request that is structurally well-formed but
// semantically invalid (duplicate name, reparent cycle, cross-project
// reference, empty suite on execute).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError checks if the error is or wraps a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return err != nil && errors.As(err, &validationErr)
}

// StateError indicates an operation that is not allowed in the entity's
// current lifecycle state (mutating an archived suite, deleting a suite with
// children, cancelling a terminal run).
type StateError struct {
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: %s", e.Message)
}

// NewStateError creates a new StateError
func NewStateError(format string, args ...any) *StateError {
	return &StateError{Message: fmt.Sprintf(format, args...)}
}

// IsStateError checks if the error is or wraps a StateError
func IsStateError(err error) bool {
	var stateErr *StateError
	return err != nil && errors.As(err, &stateErr)
}

// CrossEntityError indicates an operation across entities that do not belong
// together, such as comparing runs of two different suites.
type CrossEntityError struct {
	Message string
}

func (e *CrossEntityError) Error() string {
	return fmt.Sprintf("cross-entity error: %s", e.Message)
}

// NewCrossEntityError creates a new CrossEntityError
func NewCrossEntityError(format string, args ...any) *CrossEntityError {
	return &CrossEntityError{Message: fmt.Sprintf(format, args...)}
}

// IsCrossEntityError checks if the error is or wraps a CrossEntityError
func IsCrossEntityError(err error) bool {
	var crossErr *CrossEntityError
	return err != nil && errors.As(err, &crossErr)
}
