// Package protocol defines the structures and constants for the Model Context Protocol (MCP).
package protocol

import "fmt"

// MCPError wraps ErrorPayload to implement the error interface.
// Handlers return this type when they want to control the JSON-RPC error
// sent to the client verbatim; any other error is folded into
// CodeInternalError by the session dispatcher.
type MCPError struct {
	ErrorPayload
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError builds an MCPError for malformed request params.
func NewInvalidParamsError(message string) *MCPError {
	return &MCPError{ErrorPayload{Code: CodeInvalidParams, Message: message}}
}

// NewMethodNotFoundError builds an MCPError for an unrecognized method name.
func NewMethodNotFoundError(method string) *MCPError {
	return &MCPError{ErrorPayload{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}}
}

// NewInternalError wraps an arbitrary failure as a JSON-RPC internal error.
func NewInternalError(message string) *MCPError {
	return &MCPError{ErrorPayload{Code: CodeInternalError, Message: message}}
}

// AsErrorPayload converts any error into an ErrorPayload, preferring an
// embedded MCPError's own code/message when present.
func AsErrorPayload(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	if mcpErr, ok := err.(*MCPError); ok {
		return &mcpErr.ErrorPayload
	}
	return &ErrorPayload{Code: CodeInternalError, Message: err.Error()}
}
