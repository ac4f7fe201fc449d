package errors

import (
	"errors"
	"fmt"
)

// MetaError is the structured error type for metaindexer.
// It carries enough context for logging and for user-facing CLI output.
type MetaError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *MetaError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MetaError) Unwrap() error {
	return e.Cause
}

// Is matches another MetaError by code, so errors.Is works with sentinel-style
// values such as New(ErrCodeIndexLocked, "", nil).
func (e *MetaError) Is(target error) bool {
	if t, ok := target.(*MetaError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *MetaError) WithDetail(key, value string) *MetaError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *MetaError) WithSuggestion(suggestion string) *MetaError {
	e.Suggestion = suggestion
	return e
}

// New creates a new MetaError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *MetaError {
	return &MetaError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a MetaError from an existing error.
// The error's message becomes the MetaError message.
func Wrap(code string, err error) *MetaError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *MetaError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *MetaError {
	return New(ErrCodeFileNotFound, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *MetaError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *MetaError {
	return New(ErrCodeInternal, message, cause)
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var me *MetaError
	if errors.As(err, &me) {
		return me.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first MetaError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var me *MetaError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// HasCode reports whether any MetaError in the chain carries code.
func HasCode(err error, code string) bool {
	return errors.Is(err, &MetaError{Code: code})
}
