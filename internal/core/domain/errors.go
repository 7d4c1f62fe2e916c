// Package domain defines the core domain models for e-charlar.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain or storage error with a structured error code.
//
// Codes have the form EC-<AREA>-<NNNN>. Two DomainErrors match under
// errors.Is when their codes are equal, so callers compare against the
// sentinels below regardless of attached details or causes.
type DomainError struct {
	Code    string // Error code (e.g., "EC-STOR-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// WithOp prefixes err with the failed operation and the identifiers it
// touched, e.g. WithOp(err, "find_user", "user=%s", id). A *DomainError
// keeps its code, so errors.Is still matches its sentinel. Other errors
// are wrapped with %w. A nil err returns nil.
func WithOp(err error, op, format string, args ...any) error {
	if err == nil {
		return nil
	}
	where := op
	if format != "" {
		where += " " + fmt.Sprintf(format, args...)
	}

	de, ok := err.(*DomainError)
	if !ok {
		return fmt.Errorf("%s: %w", where, err)
	}
	details := where
	if de.Details != "" {
		details += ": " + de.Details
	}
	return &DomainError{
		Code:    de.Code,
		Message: de.Message,
		Details: details,
		Cause:   de.Cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrOpen indicates the store location is missing, inaccessible or misconfigured.
	ErrOpen = NewDomainError("EC-STOR-5001", "store open failed")

	// ErrIO indicates an underlying device or storage failure.
	ErrIO = NewDomainError("EC-STOR-5002", "storage io error")

	// ErrClosed indicates an operation on a store that has been closed.
	ErrClosed = NewDomainError("EC-STOR-5030", "store closed")

	// ErrNotFound indicates a point lookup for an identifier that does not exist.
	ErrNotFound = NewDomainError("EC-STOR-4040", "not found")
)

// ============================================================================
// Key and Codec Errors (KEY, CODEC)
// ============================================================================

var (
	// ErrEncoding indicates a storage key could not be built.
	ErrEncoding = NewDomainError("EC-KEY-4220", "key encoding failed")

	// ErrSerialization indicates a record could not be serialized.
	ErrSerialization = NewDomainError("EC-CODEC-5001", "record serialization failed")

	// ErrCorruptRecord indicates a stored record could not be decoded into its expected shape.
	ErrCorruptRecord = NewDomainError("EC-CODEC-5002", "corrupt record")
)

// ============================================================================
// Argument Errors (ARG, MSG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("EC-ARG-1001", "invalid argument")

	// ErrInvalidContent indicates a message kind that is not one of the closed set.
	ErrInvalidContent = NewDomainError("EC-MSG-4001", "invalid message content")
)
