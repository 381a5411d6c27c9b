package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPersistence       = errors.New("persistence failure")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrUnauthorized      = errors.New("unauthorized")
)

type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field string, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Item    string
	Flavour string
}

func (e *NotFoundError) Error() string {
	if e.Flavour == "" {
		return fmt.Sprintf("item %q not found", e.Item)
	}
	return fmt.Sprintf("item %q flavour %q not found", e.Item, e.Flavour)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StockShortfall names a cart line that cannot be served from live stock.
// RequestedTotal sums every line for the same item and flavour and is what was
// compared against Available.
type StockShortfall struct {
	LineIndex      int    `json:"line_index"`
	Item           string `json:"item"`
	Flavour        string `json:"flavour"`
	Requested      int    `json:"requested"`
	RequestedTotal int    `json:"requested_total"`
	Available      int    `json:"available"`
}

type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		if s.RequestedTotal > s.Requested {
			parts = append(parts, fmt.Sprintf("%s/%s requested %d (%d across cart), available %d", s.Item, s.Flavour, s.Requested, s.RequestedTotal, s.Available))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s/%s requested %d, available %d", s.Item, s.Flavour, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// AsPersistence wraps err as a PersistenceError unless it already carries a domain kind.
func AsPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) || errors.Is(err, ErrValidation) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// InsufficientDataError reports a forecast request over too short a sales history.
type InsufficientDataError struct {
	Days     int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough historical data for prediction (min %d days required, have %d)", e.Required, e.Days)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }
