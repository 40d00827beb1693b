package errors

import (
	"errors"
	"fmt"
)

// Domain errors for the ledger service
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrInvalidAmount        = errors.New("amount must be a positive integer")
	ErrVersionConflict      = errors.New("account was modified concurrently")
	ErrConcurrencyConflict  = errors.New("too many concurrent modifications, retry later")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidCredentials   = errors.New("invalid credentials")
)

// PersistenceError wraps a storage-level failure
type PersistenceError struct {
	Operation string
	Cause     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during '%s': %v", e.Operation, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

func NewPersistenceError(operation string, cause error) error {
	return &PersistenceError{
		Operation: operation,
		Cause:     cause,
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAccountAlreadyExists)
}

func IsInvalidAmount(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}

// IsConflict reports both a single version mismatch and exhausted retries.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrConcurrencyConflict)
}

func IsPersistence(err error) bool {
	var persistenceErr *PersistenceError
	return errors.As(err, &persistenceErr)
}
