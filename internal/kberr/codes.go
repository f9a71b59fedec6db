// Package kberr provides structured error handling for kbengine.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: configuration errors
//   - 2XX: storage errors (usage DB, document store)
//   - 3XX: embedding provider errors
//   - 4XX: validation errors
//   - 5XX: build and internal errors
package kberr

// Category classifies errors for handling policy decisions.
type Category string

const (
	CategoryConfig   Category = "CONFIG"
	CategoryStorage  Category = "STORAGE"
	CategoryProvider Category = "PROVIDER"
	CategoryInput    Category = "INPUT"
	CategoryBuild    Category = "BUILD"
)

// Severity levels. Warnings indicate degraded but continuing
// operation, the common case for this engine: a failed rebuild keeps
// serving the previous snapshot, a malformed document is skipped.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	CodeNoEmbedder    = "ERR_101_NO_EMBEDDER"
	CodeConfigInvalid = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	CodeUsageStore    = "ERR_201_USAGE_STORE"
	CodeDocumentStore = "ERR_202_DOCUMENT_STORE"
	CodeLockHeld      = "ERR_203_DATA_DIR_LOCKED"

	// Embedding provider errors (300-399)
	CodeProviderTimeout     = "ERR_301_PROVIDER_TIMEOUT"
	CodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"

	// Validation errors (400-499)
	CodeInvalidInput      = "ERR_401_INVALID_INPUT"
	CodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"

	// Build and internal errors (500-599)
	CodeBuildFailed       = "ERR_501_BUILD_FAILED"
	CodeEmbeddingFailed   = "ERR_502_EMBEDDING_FAILED"
	CodeMalformedDocument = "ERR_503_MALFORMED_DOCUMENT"
	CodeInternal          = "ERR_504_INTERNAL"
)

func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryBuild
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryProvider
	case '4':
		return CategoryInput
	default:
		return CategoryBuild
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case CodeLockHeld:
		return SeverityFatal
	case CodeNoEmbedder, CodeMalformedDocument, CodeBuildFailed:
		// These degrade gracefully: lexical-only fallback, skipped
		// document, retained previous snapshot.
		return SeverityWarning
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case CodeProviderTimeout, CodeProviderUnavailable:
		return true
	default:
		return false
	}
}
