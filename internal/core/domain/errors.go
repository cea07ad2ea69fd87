package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input: a bad permission name, an
// expiry that is not in the future, or a duplicate name.
type ValidationError struct {
	msg string
}

// NewValidationError constructs a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.msg }

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// InvariantViolation reports an attempt to mutate a protected system
// object: renaming, deactivating, or deleting a system role or
// system permission.
type InvariantViolation struct {
	msg string
}

// NewInvariantViolation constructs an InvariantViolation from a format string.
func NewInvariantViolation(format string, args ...any) *InvariantViolation {
	return &InvariantViolation{msg: fmt.Sprintf(format, args...)}
}

func (e *InvariantViolation) Error() string { return e.msg }

// IsInvariantViolation reports whether err is (or wraps) an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var target *InvariantViolation
	return errors.As(err, &target)
}

// NotFoundError reports a targeted mutation or lookup against an ID
// that does not exist.
type NotFoundError struct {
	msg string
}

// NewNotFoundError constructs a NotFoundError from a format string.
func NewNotFoundError(format string, args ...any) *NotFoundError {
	return &NotFoundError{msg: fmt.Sprintf(format, args...)}
}

func (e *NotFoundError) Error() string { return e.msg }

// IsNotFoundError reports whether err is (or wraps) a NotFoundError.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// ConflictError reports a delete blocked by live associations: a role
// still held by users, or a permission still granted to roles.
type ConflictError struct {
	msg string
}

// NewConflictError constructs a ConflictError from a format string.
func NewConflictError(format string, args ...any) *ConflictError {
	return &ConflictError{msg: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string { return e.msg }

// IsConflictError reports whether err is (or wraps) a ConflictError.
func IsConflictError(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
