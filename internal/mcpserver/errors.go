package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/Aman-CERP/amanmcp/internal/engineerr"
)

// Custom MCP error codes for irisd, in the same JSON-RPC reserved range the
// teacher used for AmanMCP-specific errors.
const (
	ErrCodeDocNotFound     = -32001
	ErrCodeEmbedderFailed  = -32002
	ErrCodeTimeout         = -32003
	ErrCodeStorageFailure  = -32004
	ErrCodeCorruption      = -32005

	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an engine error into an MCPError, branching on the
// engine's Kind taxonomy rather than on sentinel errors since every engine
// failure path already returns an *engineerr.EngineError.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var ee *engineerr.EngineError
	if errors.As(err, &ee) {
		switch ee.Kind {
		case engineerr.KindNotFound:
			return &MCPError{Code: ErrCodeDocNotFound, Message: ee.Message}
		case engineerr.KindEmbedderFailure:
			return &MCPError{Code: ErrCodeEmbedderFailed, Message: ee.Message}
		case engineerr.KindIO:
			return &MCPError{Code: ErrCodeStorageFailure, Message: ee.Message}
		case engineerr.KindCorruption:
			return &MCPError{Code: ErrCodeCorruption, Message: ee.Message}
		case engineerr.KindInvalidArgument:
			return &MCPError{Code: ErrCodeInvalidParams, Message: ee.Message}
		default:
			return &MCPError{Code: ErrCodeInternalError, Message: ee.Message}
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "request timed out"}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: err.Error()}
	}
}

// NewInvalidParamsError creates an error for invalid tool parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}
