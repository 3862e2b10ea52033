// Package errors provides structured error handling for ragmill.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Fetch (upstream page) errors
//   - 3XX: Embedding / LLM errors
//   - 4XX: Validation errors
//   - 5XX: Store errors (vector store, property graph)
//   - 6XX: Cancellation
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryFetch indicates upstream page fetch errors.
	CategoryFetch Category = "FETCH"
	// CategoryEmbedding indicates embedding or LLM provider errors.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryValidation indicates caller input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryStore indicates vector store or property graph errors.
	CategoryStore Category = "STORE"
	// CategoryCancelled indicates caller deadline or cancellation.
	CategoryCancelled Category = "CANCELLED"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but process continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid    = "ERR_101_CONFIG_INVALID"
	ErrCodeConfigMissing    = "ERR_102_CONFIG_MISSING"
	ErrCodeGraphUnavailable = "ERR_103_GRAPH_NOT_CONFIGURED"

	// Fetch errors (200-299)
	ErrCodeFetchFailed  = "ERR_201_FETCH_FAILED"
	ErrCodeFetchTimeout = "ERR_202_FETCH_TIMEOUT"
	ErrCodeFetcherInit  = "ERR_203_FETCHER_INIT"

	// Embedding / LLM errors (300-399)
	ErrCodeEmbeddingFailed = "ERR_301_EMBEDDING_FAILED"
	ErrCodeLLMFailed       = "ERR_302_LLM_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidURL      = "ERR_402_INVALID_URL"
	ErrCodeUnknownStrategy = "ERR_403_UNKNOWN_STRATEGY"
	ErrCodeOutOfRange      = "ERR_404_OUT_OF_RANGE"

	// Store errors (500-599)
	ErrCodeStoreWrite        = "ERR_501_STORE_WRITE"
	ErrCodeStoreQuery        = "ERR_502_STORE_QUERY"
	ErrCodeGraphWrite        = "ERR_503_GRAPH_WRITE"
	ErrCodeGraphQuery        = "ERR_504_GRAPH_QUERY"
	ErrCodeDimensionMismatch = "ERR_505_DIMENSION_MISMATCH"

	// Cancellation (600-699)
	ErrCodeCancelled = "ERR_601_CANCELLED"

	// Internal errors (900-999)
	ErrCodeInternal = "ERR_901_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		if code == ErrCodeGraphUnavailable {
			return CategoryStore
		}
		return CategoryConfig
	case '2':
		return CategoryFetch
	case '3':
		return CategoryEmbedding
	case '4':
		return CategoryValidation
	case '5':
		return CategoryStore
	case '6':
		return CategoryCancelled
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeFetcherInit, ErrCodeConfigMissing:
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
	case ErrCodeFetchTimeout, ErrCodeEmbeddingFailed, ErrCodeLLMFailed,
		ErrCodeStoreWrite, ErrCodeGraphWrite:
		return true
	default:
		return false
	}
}
