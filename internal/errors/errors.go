package errors

import (
	"fmt"
)

// RagError is the structured error type for ragmill.
// It provides rich context for error handling, logging, and the tool-call
// response envelope.
type RagError struct {
	// Code is the unique error code (e.g., "ERR_201_FETCH_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Fetch, Store, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *RagError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RagError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RagError.
func (e *RagError) Is(target error) bool {
	if t, ok := target.(*RagError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RagError) WithDetail(key, value string) *RagError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// ErrorType returns the lowercase category for the tool-response envelope's
// error_type field.
func (e *RagError) ErrorType() string {
	switch e.Category {
	case CategoryValidation:
		return "validation_error"
	case CategoryFetch:
		return "fetch_error"
	case CategoryEmbedding:
		return "embedding_error"
	case CategoryStore:
		return "store_error"
	case CategoryCancelled:
		return "cancellation_error"
	case CategoryConfig:
		return "config_error"
	default:
		return "internal_error"
	}
}

// New creates a new RagError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RagError {
	return &RagError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RagError from an existing error.
// The error's message becomes the RagError message.
func Wrap(code string, err error) *RagError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *RagError {
	return New(ErrCodeInvalidInput, message, cause)
}

// FetchError creates an upstream fetch error. Retryable.
func FetchError(message string, cause error) *RagError {
	return New(ErrCodeFetchFailed, message, cause)
}

// EmbeddingError creates an embedding-provider error.
func EmbeddingError(message string, cause error) *RagError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// StoreError creates a vector-store error.
func StoreError(message string, cause error) *RagError {
	return New(ErrCodeStoreWrite, message, cause)
}

// GraphUnavailable creates the error surfaced when a knowledge-graph
// operation is requested but the graph is not configured.
func GraphUnavailable() *RagError {
	return New(ErrCodeGraphUnavailable,
		"knowledge graph is not configured; set NEO4J_URI, NEO4J_USER and NEO4J_PASSWORD", nil)
}

// Cancelled creates a cancellation error carrying a partial-progress summary.
func Cancelled(progress string) *RagError {
	e := New(ErrCodeCancelled, "operation cancelled by caller deadline", nil)
	if progress != "" {
		e = e.WithDetail("progress", progress)
	}
	return e
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a RagError with the Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RagError); ok {
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
	if re, ok := err.(*RagError); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a RagError.
// Returns empty string if not a RagError.
func GetCode(err error) string {
	if re, ok := err.(*RagError); ok {
		return re.Code
	}
	return ""
}
