package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the three failure classes callers branch on. State
// machine refusals and missing records come back as wrapped values of
// these, never as panics, so "was this accepted?" stays ordinary control
// flow for the request layer.
var (
	// ErrNotFound: the entity does not exist or belongs to another company.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState: the operation is forbidden from the entity's
	// current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation: malformed input, rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict: a concurrent update won; the caller may retry.
	ErrConflict = errors.New("conflicting update")
)

// NotFoundf wraps ErrNotFound with the entity kind and id.
func NotFoundf(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// InvalidStatef wraps ErrInvalidState with the refused action and the
// status that forbids it.
func InvalidStatef(action string, status any) error {
	return fmt.Errorf("cannot %s (current status: %v): %w", action, status, ErrInvalidState)
}

// Validationf wraps ErrValidation with the reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}
