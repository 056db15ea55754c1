package mcp

import (
	"fmt"

	"github.com/producthelper/producthelper/pkg/models"
)

// Standard JSON-RPC 2.0 error codes.
const (
	// ErrCodeParseError indicates the request body was not valid JSON.
	ErrCodeParseError = -32700

	// ErrCodeInvalidRequest indicates the JSON is not a valid JSON-RPC envelope.
	ErrCodeInvalidRequest = -32600

	// ErrCodeMethodNotFound indicates the method is not served here.
	ErrCodeMethodNotFound = -32601

	// ErrCodeInvalidParams indicates malformed method parameters.
	ErrCodeInvalidParams = -32602

	// ErrCodeInternalError indicates an internal JSON-RPC error.
	ErrCodeInternalError = -32603
)

// Server-specific error codes (-32001 to -32099).
const (
	// ErrCodeNotFound indicates the named tool is not registered.
	ErrCodeNotFound = -32001

	// ErrCodeUnauthorized indicates a missing, malformed, or revoked API key.
	ErrCodeUnauthorized = -32002

	// ErrCodeRateLimited indicates the key prefix exhausted its window budget.
	ErrCodeRateLimited = -32003

	// ErrCodeToolError indicates the tool handler failed while executing.
	ErrCodeToolError = -32004
)

var errorMessages = map[int]string{
	ErrCodeParseError:     "Parse error",
	ErrCodeInvalidRequest: "Invalid request",
	ErrCodeMethodNotFound: "Method not found",
	ErrCodeInvalidParams:  "Invalid params",
	ErrCodeInternalError:  "Internal error",
	ErrCodeNotFound:       "Tool not found",
	ErrCodeUnauthorized:   "Unauthorized",
	ErrCodeRateLimited:    "Rate limit exceeded",
	ErrCodeToolError:      "Tool execution error",
}

// NewError creates an error object with the canonical message for code.
func NewError(code int, data interface{}) *models.MCPError {
	msg, ok := errorMessages[code]
	if !ok {
		msg = "Unknown error"
	}
	return &models.MCPError{
		Code:    code,
		Message: msg,
		Data:    data,
	}
}

// ParseError reports an unparseable request body.
func ParseError(detail string) *models.MCPError {
	return NewError(ErrCodeParseError, detail)
}

// InvalidRequestError reports an envelope that parsed but is not a valid
// JSON-RPC 2.0 request.
func InvalidRequestError(detail string) *models.MCPError {
	return NewError(ErrCodeInvalidRequest, detail)
}

// MethodNotFoundError names the method that is not served.
func MethodNotFoundError(method string) *models.MCPError {
	return NewError(ErrCodeMethodNotFound, fmt.Sprintf("Method %q is not supported", method))
}

// InvalidParamsError reports malformed or schema-violating parameters.
func InvalidParamsError(detail string) *models.MCPError {
	return NewError(ErrCodeInvalidParams, detail)
}

// InternalError wraps an unexpected server-side failure.
func InternalError(err error) *models.MCPError {
	var detail interface{}
	if err != nil {
		detail = err.Error()
	}
	return NewError(ErrCodeInternalError, detail)
}

// NotFoundError names the tool that is not registered.
func NotFoundError(tool string) *models.MCPError {
	return NewError(ErrCodeNotFound, fmt.Sprintf("Tool %q is not registered", tool))
}

// UnauthorizedError reports a rejected API key.
func UnauthorizedError(detail string) *models.MCPError {
	return NewError(ErrCodeUnauthorized, detail)
}

// RateLimitedError reports an exhausted window budget.
func RateLimitedError(detail string) *models.MCPError {
	return NewError(ErrCodeRateLimited, detail)
}

// ToolExecutionError carries the message of a failed tool handler.
func ToolExecutionError(tool string, err error) *models.MCPError {
	detail := map[string]string{"tool": tool}
	if err != nil {
		detail["detail"] = err.Error()
	}
	return NewError(ErrCodeToolError, detail)
}

// ErrorResponse wraps an error object in a response envelope echoing id.
func ErrorResponse(id interface{}, errObj *models.MCPError) *models.MCPResponse {
	return &models.MCPResponse{
		Jsonrpc: "2.0",
		Error:   errObj,
		ID:      id,
	}
}

// SuccessResponse wraps a result in a response envelope echoing id.
func SuccessResponse(id interface{}, result interface{}) *models.MCPResponse {
	return &models.MCPResponse{
		Jsonrpc: "2.0",
		Result:  result,
		ID:      id,
	}
}
