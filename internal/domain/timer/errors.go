package timer

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or missing input to a manager operation.
// No mutation has occurred when it is returned.
type ValidationError struct {
	// Reason describes what was wrong with the input.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError or wraps one.
// MalformedActionError counts as validation since it surfaces the same way.
func IsValidation(err error) bool {
	var (
		ve *ValidationError
		me *MalformedActionError
	)

	return errors.As(err, &ve) || errors.As(err, &me)
}

// NotFoundError reports an operation targeting a name or group with no
// matching live timer in the required state.
type NotFoundError struct {
	// Name is the timer or group name that had no match.
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("timer %q not found", e.Name)
}

// IsNotFound reports whether err is a NotFoundError or wraps one.
func IsNotFound(err error) bool {
	var e *NotFoundError

	return errors.As(err, &e)
}

// DuplicateNameError reports a create call colliding with a live timer.
type DuplicateNameError struct {
	// Name is the colliding timer name.
	Name string
}

// Error implements the error interface.
func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("timer %q already exists", e.Name)
}

// IsDuplicateName reports whether err is a DuplicateNameError or wraps one.
func IsDuplicateName(err error) bool {
	var e *DuplicateNameError

	return errors.As(err, &e)
}

// MalformedActionError reports an action specification that could not be
// normalized into a canonical descriptor.
type MalformedActionError struct {
	// Reason describes why normalization failed.
	Reason string
}

// Error implements the error interface.
func (e *MalformedActionError) Error() string {
	return "malformed action: " + e.Reason
}

// MalformedActionf builds a MalformedActionError with a formatted reason.
func MalformedActionf(format string, args ...any) error {
	return &MalformedActionError{Reason: fmt.Sprintf(format, args...)}
}

// IsMalformedAction reports whether err is a MalformedActionError or wraps one.
func IsMalformedAction(err error) bool {
	var e *MalformedActionError

	return errors.As(err, &e)
}

// CorruptStoreError reports unreadable or malformed persisted data. Callers
// fall back to an empty live set and log it instead of failing startup.
type CorruptStoreError struct {
	// Err is the underlying decode or read failure.
	Err error
}

// Error implements the error interface.
func (e *CorruptStoreError) Error() string {
	return "corrupt timer store: " + e.Err.Error()
}

// Unwrap exposes the underlying failure.
func (e *CorruptStoreError) Unwrap() error {
	return e.Err
}

// IsCorruptStore reports whether err is a CorruptStoreError or wraps one.
func IsCorruptStore(err error) bool {
	var e *CorruptStoreError

	return errors.As(err, &e)
}

// ActionDispatchError reports a single action failing at expiry time.
// It is logged per action and never aborts the rest of the action list.
type ActionDispatchError struct {
	// Timer is the name of the firing timer.
	Timer string
	// Index is the position of the failed action in the timer's list.
	Index int
	// Err is the underlying dispatch failure.
	Err error
}

// Error implements the error interface.
func (e *ActionDispatchError) Error() string {
	return fmt.Sprintf("timer %q action %d: %v", e.Timer, e.Index, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *ActionDispatchError) Unwrap() error {
	return e.Err
}
