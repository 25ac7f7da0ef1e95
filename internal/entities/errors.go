package entities

import (
	"errors"
	"fmt"
)

// Standard error variables. Typed errors below match them with errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("record not found")
	ErrDeletionRejected = errors.New("deletion rejected")
	ErrLimitExceeded    = errors.New("record limit exceeded")
	ErrUnauthorized     = errors.New("unauthorized")
)

// ErrorClass groups errors by how the transport should surface them
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassInvalid
	ClassNotFound
	ClassRejected
	ClassLimit
	ClassUnauthorized
)

// String returns the string representation of ErrorClass
func (c ErrorClass) String() string {
	switch c {
	case ClassInvalid:
		return "invalid"
	case ClassNotFound:
		return "not_found"
	case ClassRejected:
		return "rejected"
	case ClassLimit:
		return "limit"
	case ClassUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Classify returns the class of err
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrInvalidInput):
		return ClassInvalid
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrDeletionRejected):
		return ClassRejected
	case errors.Is(err, ErrLimitExceeded):
		return ClassLimit
	case errors.Is(err, ErrUnauthorized):
		return ClassUnauthorized
	default:
		return ClassInternal
	}
}

// InvalidInputError reports a request parameter that cannot be honored
type InvalidInputError struct {
	Param   string
	Message string
}

// NewInvalidInputError returns a new InvalidInputError
func NewInvalidInputError(param, message string) *InvalidInputError {
	return &InvalidInputError{Param: param, Message: message}
}

// Error implements the error interface
func (e *InvalidInputError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("invalid input: %s", e.Message)
	}
	return fmt.Sprintf("invalid input %s: %s", e.Param, e.Message)
}

// Is allows errors.Is(err, ErrInvalidInput)
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NotFoundError reports a missing record
type NotFoundError struct {
	EntityType string
	ID         string
}

// NewNotFoundError returns a new NotFoundError
func NewNotFoundError(entityType, id string) *NotFoundError {
	return &NotFoundError{EntityType: entityType, ID: id}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record with ID = %q does not exist in %s", e.ID, e.EntityType)
}

// Is allows errors.Is(err, ErrNotFound)
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DeletionRejectedError reports a deletion blocked by live associations
type DeletionRejectedError struct {
	EntityType string
	ID         string
	Count      int64
}

// Error implements the error interface
func (e *DeletionRejectedError) Error() string {
	return fmt.Sprintf("%s with id %s has %d associated record(s) and is NOT valid for deletion. Please clean up before you delete.",
		e.EntityType, e.ID, e.Count)
}

// Is allows errors.Is(err, ErrDeletionRejected)
func (e *DeletionRejectedError) Is(target error) bool {
	return target == ErrDeletionRejected
}
