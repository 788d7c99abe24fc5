package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every typed error below matches exactly one of these with
// errors.Is, so callers can branch on the kind without knowing the type.
var (
	ErrValidation  = errors.New("validation failed")
	ErrStock       = errors.New("insufficient stock")
	ErrPersistence = errors.New("persistence failure")
	ErrGateway     = errors.New("gateway failure")
	ErrSignature   = errors.New("invalid signature")
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("not found")
)

type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StockError reports the first product that could not cover the requested
// quantity.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool { return target == ErrStock }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

// GatewayError covers transport failures, timeouts and non-success business
// responses from a payment gateway. Message carries the gateway's own text
// when it sent one.
type GatewayError struct {
	Gateway    string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Gateway, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Gateway, e.Op, msg)
}

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

func (e *GatewayError) Unwrap() error { return e.Err }

type SignatureError struct {
	Gateway string
	Reason  string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s webhook signature: %s", e.Gateway, e.Reason)
}

func (e *SignatureError) Is(target error) bool { return target == ErrSignature }

// ConflictError is returned for transitions attempted from a terminal or
// otherwise wrong state.
type ConflictError struct {
	Entity string
	ID     string
	State  string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("%s %s is %s: %s", e.Entity, e.ID, e.State, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// AsPersistence wraps err as a PersistenceError unless it already carries a
// domain kind.
func AsPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if HasKind(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// HasKind reports whether err matches one of the domain error kinds.
func HasKind(err error) bool {
	for _, kind := range []error{ErrValidation, ErrStock, ErrPersistence, ErrGateway, ErrSignature, ErrConflict, ErrNotFound} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
