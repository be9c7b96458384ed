package kanban

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches any *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound matches any *NotFoundError.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + " " + e.Reason
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid is shorthand for a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError reports an id that does not resolve to a record.
type NotFoundError struct {
	Kind string // board, column, card, label
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound is shorthand for a *NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// StoreError wraps a failure of the underlying persistence layer.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStore wraps err in a *StoreError unless it is nil or already typed.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
