package escrow

import (
	"errors"
	"fmt"

	"github.com/xraph/escrow/fee"
	"github.com/xraph/escrow/types"
)

// Sentinel errors. Every failure returned by the engine matches exactly one
// Kind through errors.Is.
var (
	// Lookup and authorization errors
	ErrNotFound     = errors.New("escrow: not found")
	ErrUnauthorized = errors.New("escrow: unauthorized")
	ErrWrongPayer   = errors.New("escrow: caller is not the invoice payer")

	// Lifecycle errors
	ErrInvalidState        = errors.New("escrow: invalid state")
	ErrAlreadyInstantiated = fmt.Errorf("%w: admin already set", ErrInvalidState)
	ErrNotInstantiated     = fmt.Errorf("%w: admin not set", ErrInvalidState)
	ErrNotYetDue           = errors.New("escrow: withdrawal not yet due")

	// Funds and arithmetic errors
	ErrInsufficientFunds = errors.New("escrow: insufficient funds")
	ErrInvalidSchedule   = fee.ErrInvalidSchedule
	ErrOverflow          = types.ErrOverflow

	// Input errors
	ErrInvalidInput        = errors.New("escrow: invalid input")
	ErrChargesExceedAmount = fmt.Errorf("%w: %w", ErrInvalidInput, fee.ErrChargesExceedAmount)
	ErrUnsupportedToken    = fmt.Errorf("%w: only native tokens settle", ErrInvalidInput)
	ErrUnknownOperation    = fmt.Errorf("%w: unknown operation", ErrInvalidInput)

	// Store errors
	ErrStoreCorrupt = errors.New("escrow: store corrupt")
	ErrReadOnly     = errors.New("escrow: write in read-only transaction")
)

// Kind classifies an error returned by the engine.
type Kind string

const (
	KindNone              Kind = ""
	KindNotFound          Kind = "NotFound"
	KindUnauthorized      Kind = "Unauthorized"
	KindWrongPayer        Kind = "WrongPayer"
	KindInvalidState      Kind = "InvalidState"
	KindInsufficientFunds Kind = "InsufficientFunds"
	KindInvalidSchedule   Kind = "InvalidSchedule"
	KindOverflow          Kind = "Overflow"
	KindNotYetDue         Kind = "NotYetDue"
	KindStoreCorrupt      Kind = "StoreCorrupt"
	KindInvalidInput      Kind = "InvalidInput"
	KindInternal          Kind = "Internal"
)

// KindOf returns the Kind of err, KindNone for nil and KindInternal for
// errors that did not originate in the engine (I/O, context, driver).
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrWrongPayer):
		return KindWrongPayer
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrInvalidSchedule):
		return KindInvalidSchedule
	case errors.Is(err, ErrOverflow):
		return KindOverflow
	case errors.Is(err, ErrNotYetDue):
		return KindNotYetDue
	case errors.Is(err, ErrStoreCorrupt):
		return KindStoreCorrupt
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// OpError records the operation and invoice an error occurred on.
type OpError struct {
	Op        string
	InvoiceID uint64
	Err       error
}

func (e *OpError) Error() string {
	if e.InvoiceID != 0 {
		return fmt.Sprintf("%s %d: %v", e.Op, e.InvoiceID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opError(op string, invoiceID uint64, err error) error {
	if err == nil {
		return nil
	}
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return &OpError{Op: op, InvoiceID: invoiceID, Err: err}
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("escrow: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap makes every ValidationError match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "escrow: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("escrow: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthError returns true if the caller was not allowed to perform the
// operation.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrWrongPayer)
}

// IsRetryable returns true if the same operation may succeed later without
// any other state change.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNotYetDue)
}
