package domain

import (
	"errors"
	"fmt"
)

// Errors returned by the inventory and point-of-sale core. Callers match
// them with errors.Is.
var (
	// ErrInsufficientStock is returned when a deduction exceeds the
	// available quantity.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrMissingReason is returned when an adjustment or return has no
	// justification.
	ErrMissingReason = errors.New("reason is required")

	ErrNotFound = errors.New("not found")

	// ErrInvalidStateTransition is returned when a sale or drawer is not in
	// a state that allows the requested operation.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	ErrValidationFailed = errors.New("validation failed")

	// ErrConflict is returned when a unique name is already taken.
	ErrConflict = errors.New("already exists")

	// ErrInUse is returned when deleting a record that others reference.
	ErrInUse = errors.New("record is in use")
)

// Drawer errors also match ErrInvalidStateTransition.
var (
	ErrAlreadyOpen = fmt.Errorf("%w: cash drawer already open", ErrInvalidStateTransition)
	ErrNotOpen     = fmt.Errorf("%w: cash drawer not open", ErrInvalidStateTransition)
)

// OpError wraps a core error with the operation that failed.
type OpError struct {
	// Op is the operation that failed (e.g. "ledger.Append").
	Op string

	// Err is one of the sentinel errors above.
	Err error

	// Details provides context for the caller.
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError creates an OpError with formatted details.
func NewOpError(op string, err error, format string, args ...any) *OpError {
	return &OpError{Op: op, Err: err, Details: fmt.Sprintf(format, args...)}
}

// StockError names the medication that could not cover a deduction.
type StockError struct {
	MedicationID string
	Name         string
	Requested    int64
	Available    int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%v for %q (%s): requested %d, available %d",
		ErrInsufficientStock, e.Name, e.MedicationID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}
