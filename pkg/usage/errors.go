package usage

import (
	"errors"
	"fmt"
)

// ErrInvalidMonth is returned for a report month outside 1..12.
var ErrInvalidMonth = errors.New("month must be between 1 and 12")

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "sqlite3", "memory")
	Operation string // Operation that failed ("append", "summarize", "prune", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// ReportError represents a failure to build or write a usage report.
type ReportError struct {
	Month int
	Cause error
}

// Error implements the error interface.
func (e *ReportError) Error() string {
	return fmt.Sprintf("usage report for month %d: %v", e.Month, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ReportError) Unwrap() error {
	return e.Cause
}
