// Package errors provides structured error handling for kbresolve.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index and mapping-file errors
//   - 3XX: Backend errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates index and mapping-file I/O errors.
	CategoryIO Category = "IO"
	// CategoryBackend indicates ranked-search-backend errors.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates mapping validation errors.
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
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Index and mapping-file errors (200-299)
	ErrCodeMappingNotFound = "ERR_201_MAPPING_NOT_FOUND"
	ErrCodeMappingInvalid  = "ERR_202_MAPPING_INVALID"
	ErrCodeIndexNotFound   = "ERR_205_INDEX_NOT_FOUND"
	ErrCodeIndexCorrupt    = "ERR_206_INDEX_CORRUPT"

	// Backend errors (300-399)
	ErrCodeBackendTimeout     = "ERR_301_BACKEND_TIMEOUT"
	ErrCodeBackendUnavailable = "ERR_302_BACKEND_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeDuplicateID   = "ERR_401_DUPLICATE_ID"
	ErrCodeInvalidRecord = "ERR_402_INVALID_RECORD"
	ErrCodeInvalidQuery  = "ERR_403_INVALID_QUERY"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeIndexFailed  = "ERR_502_INDEX_FAILED"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
)

// Sentinel errors for errors.Is checks. Matching is by code, so wrapped
// instances created with New or Wrap compare equal to these.
var (
	// ErrDuplicateIdentifier reports an id that appears more than once in a
	// single entity mapping. Fatal to the fit that observed it.
	ErrDuplicateIdentifier = New(ErrCodeDuplicateID, "duplicate identifier in entity mapping", nil)

	// ErrIndexNotFound reports a fuzzy resolution against an index that was
	// never built. Not the same thing as a search with no matches.
	ErrIndexNotFound = New(ErrCodeIndexNotFound, "synonym index does not exist", nil)

	// ErrBackendUnavailable reports that the ranked search backend could not
	// be reached or opened.
	ErrBackendUnavailable = New(ErrCodeBackendUnavailable, "search backend unavailable", nil)

	// ErrMappingNotFound reports a missing mapping file for an entity type.
	ErrMappingNotFound = New(ErrCodeMappingNotFound, "entity mapping not found", nil)
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_MAPPING_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
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
	case ErrCodeIndexCorrupt, ErrCodeDuplicateID:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendTimeout, ErrCodeBackendUnavailable:
		return true
	default:
		return false
	}
}
