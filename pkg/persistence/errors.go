// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTransactionNotFound indicates a transaction record was not found by the given identifier.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransactionAlreadyExists indicates a transaction record with the same identifier already exists.
	ErrTransactionAlreadyExists = errors.New("transaction already exists")

	// ErrInvalidRecord indicates a record is missing required fields.
	ErrInvalidRecord = errors.New("invalid record")
)

// TransactionError wraps transaction log errors with additional context.
type TransactionError struct {
	Op            string // Operation being performed (e.g., "Insert", "Update", "GetByID")
	TransactionID uint64 // Transaction ID if applicable
	Err           error  // Underlying error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s operation failed for transaction %d: %v", e.Op, e.TransactionID, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for transaction errors.
func (e *TransactionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTransactionError creates a new transaction error with context.
func NewTransactionError(op string, transactionID uint64, err error) *TransactionError {
	return &TransactionError{
		Op:            op,
		TransactionID: transactionID,
		Err:           err,
	}
}

// IsTransactionNotFound checks if an error indicates a transaction was not found.
func IsTransactionNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}
