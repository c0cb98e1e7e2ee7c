package store

import "errors"

// StoreError represents a domain error from store operations.
//
// These are business logic errors (resource not found, path escapes the
// root, etc.) as opposed to infrastructure errors (disk failure). The HTTP
// handlers translate StoreError codes to protocol status codes at the
// boundary; anything else surfaces as a 500.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the logical path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates the requested resource doesn't exist.
	// Absence is a normal outcome for probes, not a fault.
	ErrNotFound ErrorCode = iota

	// ErrSecurityViolation indicates a resolved physical path escapes the
	// store root. Requests failing this way never partially execute.
	ErrSecurityViolation

	// ErrAlreadyExists indicates a resource with the name already exists
	// and overwriting was not allowed
	ErrAlreadyExists

	// ErrNotCollection indicates the operation expected a collection but
	// found an item
	ErrNotCollection

	// ErrIsCollection indicates the operation expected an item but found
	// a collection
	ErrIsCollection

	// ErrInvalidArgument indicates invalid parameters (empty name, name
	// containing a path separator, ...)
	ErrInvalidArgument

	// ErrIOError indicates an I/O error from the underlying backend
	ErrIOError
)

// IsNotFound reports whether err is a StoreError carrying ErrNotFound.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == ErrNotFound
}

// IsSecurityViolation reports whether err is a StoreError carrying
// ErrSecurityViolation.
func IsSecurityViolation(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == ErrSecurityViolation
}
