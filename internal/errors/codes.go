// Package errors provides structured error handling for Shelfmark.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (chunk store, index files)
//   - 3XX: Backend availability errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates chunk store and index I/O errors.
	CategoryStorage Category = "STORAGE"
	// CategoryBackend indicates search backend availability errors.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreFailed  = "ERR_201_STORE_FAILED"
	ErrCodeCorruptIndex = "ERR_202_CORRUPT_INDEX"

	// Backend errors (300-399)
	ErrCodeBackendUnavailable  = "ERR_301_BACKEND_UNAVAILABLE"
	ErrCodeNoSearchableBackend = "ERR_302_NO_SEARCHABLE_BACKEND"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid,
		ErrCodeNoSearchableBackend, ErrCodeDimensionMismatch,
		ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeBackendUnavailable:
		// A single adapter being down degrades results, it does not fail them.
		return SeverityWarning
	}
	return SeverityError
}

// isRecoverableCode checks if an error code allows the query to proceed
// with partial results.
func isRecoverableCode(code string) bool {
	return code == ErrCodeBackendUnavailable
}
