// Package progress holds the error taxonomy shared by every progression component.
package progress

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPrecondition marks an operation rejected synchronously without mutation.
	ErrPrecondition = errors.New("precondition failed")
	// ErrConflict marks a duplicate operation that callers may treat as a no-op.
	ErrConflict = errors.New("conflict")
	// ErrTransactionFailed marks a transaction that resolved as failed.
	ErrTransactionFailed = errors.New("transaction failed")
)

// PreconditionError is returned when an operation is attempted out of order
// or without a required collaborator state.
type PreconditionError struct {
	Reason   string
	Blockers []string
}

func (e *PreconditionError) Error() string {
	if len(e.Blockers) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Blockers, ", ")
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// ConflictError is returned for duplicate insertions into idempotent collections.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// TransactionError carries the message of a transaction that resolved as failed.
type TransactionError struct {
	TransactionID string
	Message       string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %s", e.TransactionID, e.Message)
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailed
}

// Precondition builds a PreconditionError.
func Precondition(format string, args ...interface{}) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

// Blocked builds a PreconditionError that names what blocks the operation.
func Blocked(reason string, blockers []string) error {
	return &PreconditionError{Reason: reason, Blockers: blockers}
}

// Conflict builds a ConflictError.
func Conflict(format string, args ...interface{}) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
