package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/helpbase/kbengine/internal/kberr"
)

// MCP protocol error codes.
const (
	// ErrCodeIndexNotReady indicates no snapshot has been published yet.
	ErrCodeIndexNotReady = -32001

	// ErrCodeProviderUnavailable indicates the embedding provider failed.
	ErrCodeProviderUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is a protocol error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an invalid-parameters error.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// MapError converts engine errors to protocol errors. Messages stay
// client-safe; details live in the server log.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var kerr *kberr.Error
	if errors.As(err, &kerr) {
		var mapped *MCPError
		switch kerr.Category {
		case kberr.CategoryInput:
			mapped = &MCPError{Code: ErrCodeInvalidParams, Message: kerr.Message}
		case kberr.CategoryProvider:
			mapped = &MCPError{Code: ErrCodeProviderUnavailable, Message: "Embedding provider unavailable. Results may be keyword-only."}
		case kberr.CategoryBuild:
			mapped = &MCPError{Code: ErrCodeIndexNotReady, Message: "Index build failed. Check the engine log and rebuild."}
		default:
			mapped = &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
		}
		if kberr.IsRetryable(kerr) {
			mapped.Message += " The failure is transient; retry the request."
		}
		return mapped
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was cancelled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}
