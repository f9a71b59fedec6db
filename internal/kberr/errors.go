package kberr

import (
	"fmt"
)

// Error is the structured error type for kbengine.
type Error struct {
	// Code is the unique error code (e.g., "ERR_501_BUILD_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category groups errors by handling policy.
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, enabling errors.Is with sentinel values.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an Error with the given code and message. Category,
// severity and retryability derive from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error, reusing its message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// BuildError marks a rebuild failure. The lifecycle manager logs it
// and keeps serving the previous snapshot.
func BuildError(message string, cause error) *Error {
	return New(CodeBuildFailed, message, cause)
}

// ConfigError marks a configuration problem.
func ConfigError(message string, cause error) *Error {
	return New(CodeConfigInvalid, message, cause)
}

// UsageStoreError marks a usage persistence failure.
func UsageStoreError(message string, cause error) *Error {
	return New(CodeUsageStore, message, cause)
}

// IsRetryable reports whether err is a retryable Error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetCode extracts the error code, or "" for foreign errors.
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
