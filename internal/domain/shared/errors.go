// Package shared contains common domain types, errors and events
// used across the study and progression packages. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, matched with errors.Is().
var (
	ErrNotFound       = errors.New("entity not found")
	ErrAlreadyExists  = errors.New("entity already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidState   = errors.New("invalid state")
	ErrStorageFailure = errors.New("storage failure")
	ErrUnauthorized   = errors.New("unauthorized")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "study", "progression"
	Op      string // Operation that failed, e.g., "CloseSession"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against the kind and the wrapped error.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Study domain errors
var (
	// ErrSessionNotFound covers an unknown id, a foreign owner and an already closed session alike.
	ErrSessionNotFound = NewDomainError("study", "FindOpenSession", ErrNotFound, "no open session matches")
	ErrInvalidUserID   = NewDomainError("study", "Validate", ErrInvalidInput, "invalid user ID")
	ErrInvalidSession  = NewDomainError("study", "Validate", ErrInvalidInput, "invalid session ID")
	ErrSessionClosed   = NewDomainError("study", "Close", ErrInvalidState, "session already closed")
)

// Progression domain errors
var (
	ErrLedgerMissing      = NewDomainError("progression", "LockLedger", ErrInvalidState, "progression ledger not provisioned")
	ErrNegativeAward      = NewDomainError("progression", "Apply", ErrInvalidInput, "experience award cannot be negative")
	ErrInvalidRequirement = NewDomainError("progression", "Apply", ErrInvalidState, "level requirement must be positive")
	ErrLedgerExists       = NewDomainError("progression", "Provision", ErrAlreadyExists, "progression ledger already exists")
)

// StorageFailure wraps an infrastructure error escaping a unit of work.
// A nil err yields nil, and errors that already carry a domain meaning are returned as is.
func StorageFailure(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return WrapError(domain, op, ErrStorageFailure, "storage operation failed", err)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsStorageFailure checks if the error came from the storage layer.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageFailure)
}
