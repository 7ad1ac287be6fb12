package recommendation

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an unknown token or request.
	ErrNotFound = errors.New("not found")
	// ErrExpired reports a token presented after its expiry.
	ErrExpired = errors.New("token expired")
	// ErrAlreadyCompleted reports a submission against a received request.
	ErrAlreadyCompleted = errors.New("recommendation already submitted")
	// ErrDeadlinePassed reports a submission against an expired request.
	ErrDeadlinePassed = errors.New("deadline passed")
	// ErrInvalidPolicy reports a request type and submission method pair with no delivery policy.
	ErrInvalidPolicy = errors.New("invalid delivery policy")
	// ErrInvalidTransition reports a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict reports a duplicate token issue or a lost conditional write.
	ErrConflict = errors.New("conflict")
	// ErrValidation reports malformed request input.
	ErrValidation = errors.New("validation failed")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
