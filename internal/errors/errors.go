package errors

import (
	"fmt"
)

// ResolveError is the structured error type for kbresolve.
// It provides context for error handling, logging, and user presentation.
type ResolveError struct {
	// Code is the unique error code (e.g., "ERR_401_DUPLICATE_ID").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Backend, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ResolveError.
func (e *ResolveError) Is(target error) bool {
	if t, ok := target.(*ResolveError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ResolveError) WithDetail(key, value string) *ResolveError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *ResolveError) WithSuggestion(suggestion string) *ResolveError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ResolveError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ResolveError {
	return &ResolveError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ResolveError from an existing error.
// The error's message becomes the ResolveError message.
func Wrap(code string, err error) *ResolveError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ResolveError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// MappingError creates a mapping-file validation error.
func MappingError(message string, cause error) *ResolveError {
	return New(ErrCodeMappingInvalid, message, cause)
}

// BackendError creates a backend-related error.
// Backend errors are typically retryable.
func BackendError(message string, cause error) *ResolveError {
	return New(ErrCodeBackendUnavailable, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ResolveError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a ResolveError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*ResolveError); ok {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*ResolveError); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a ResolveError.
// Returns empty string if not a ResolveError.
func GetCode(err error) string {
	if re, ok := err.(*ResolveError); ok {
		return re.Code
	}
	return ""
}
