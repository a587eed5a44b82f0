package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is. Typed errors below unwrap to one of these.
var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidDateRange  = errors.New("invalid date range")
	ErrInvalidInspection = errors.New("invalid inspection")
	ErrIllegalTransition = errors.New("illegal zone transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidRequest    = errors.New("invalid allocation request")
	ErrConflict          = errors.New("concurrent modification")
	ErrAlreadyApplied    = errors.New("request already applied")
	ErrBatchNotFound     = errors.New("batch not found")
)

// Validation error codes.
const (
	CodeInvalidQuantity   = "InvalidQuantity"
	CodeInvalidDateRange  = "InvalidDateRange"
	CodeInvalidInspection = "InvalidInspection"
)

// ValidationError reports a batch that breaks a quantity or date invariant.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	switch e.Code {
	case CodeInvalidDateRange:
		return ErrInvalidDateRange
	case CodeInvalidInspection:
		return ErrInvalidInspection
	default:
		return ErrInvalidQuantity
	}
}

// ZoneTransitionError reports a move that the transition table does not allow.
type ZoneTransitionError struct {
	BatchID string
	From    Zone
	To      Zone
}

func (e *ZoneTransitionError) Error() string {
	return fmt.Sprintf("illegal zone transition %s -> %s", e.From, e.To)
}

func (e *ZoneTransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// InsufficientStockError reports how much eligible stock existed for a request.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ConflictError identifies the batch whose compare-and-swap lost a race.
type ConflictError struct {
	BatchID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("batch %s was modified concurrently", e.BatchID)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// InvalidRequest wraps ErrInvalidRequest with a reason.
func InvalidRequest(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, reason)
}
