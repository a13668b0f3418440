package errors

import (
	"fmt"
	"strings"
)

// ShelfError is the structured error type for Shelfmark.
// It provides rich context for error handling, logging, and user presentation.
type ShelfError struct {
	// Code is the unique error code (e.g., "ERR_301_BACKEND_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Backend, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Recoverable indicates the query can continue with partial results.
	Recoverable bool
}

// Error implements the error interface.
func (e *ShelfError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ShelfError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ShelfError.
func (e *ShelfError) Is(target error) bool {
	if t, ok := target.(*ShelfError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ShelfError) WithDetail(key, value string) *ShelfError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new ShelfError with the given code and message.
// Category, severity, and the recoverable flag are derived from the code.
func New(code string, message string, cause error) *ShelfError {
	return &ShelfError{
		Code:        code,
		Message:     message,
		Category:    categoryFromCode(code),
		Severity:    severityFromCode(code),
		Cause:       cause,
		Recoverable: isRecoverableCode(code),
	}
}

// Wrap creates a ShelfError from an existing error.
// The error's message becomes the ShelfError message.
func Wrap(code string, err error) *ShelfError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error. Configuration errors
// (bad RRF constant, non-positive weights, unknown strategy, dimension
// mismatch) are fatal and should be caught at startup where possible.
func ConfigError(message string, cause error) *ShelfError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// DimensionMismatch creates a ConfigurationError for an embedding dimension
// mismatch between the query vector and the indexed vectors.
func DimensionMismatch(expected, got int) *ShelfError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("embedding dimension mismatch: index expects %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got))
}

// BackendUnavailable creates a recoverable error for a single unreachable
// adapter. The fusion engine treats this as "contributes nothing".
func BackendUnavailable(kind string, cause error) *ShelfError {
	return New(ErrCodeBackendUnavailable,
		fmt.Sprintf("%s backend unavailable", kind), cause).
		WithDetail("adapter", kind)
}

// NoSearchableBackend creates a fatal per-query error reporting that every
// configured adapter failed. The adapters tried are carried in the message
// and details so the caller can render a clear user-facing report.
func NoSearchableBackend(tried []string) *ShelfError {
	return New(ErrCodeNoSearchableBackend,
		fmt.Sprintf("no searchable backend: all adapters failed (%s)", strings.Join(tried, ", ")), nil).
		WithDetail("adapters_tried", strings.Join(tried, ","))
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ShelfError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ShelfError {
	return New(ErrCodeInternal, message, cause)
}

// IsRecoverable checks if an error allows continuing with partial results.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*ShelfError); ok {
		return se.Recoverable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*ShelfError); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a ShelfError.
// Returns empty string if not a ShelfError.
func GetCode(err error) string {
	if se, ok := err.(*ShelfError); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a ShelfError.
// Returns empty string if not a ShelfError.
func GetCategory(err error) Category {
	if se, ok := err.(*ShelfError); ok {
		return se.Category
	}
	return ""
}
