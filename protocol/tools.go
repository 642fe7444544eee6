// Package protocol defines the structures and constants for the Model Context Protocol (MCP).
package protocol

import "encoding/json"

// PropertyDetail describes a single parameter within a ToolInputSchema.
type PropertyDetail struct {
	Type string `json:"type"`
}

// ToolInputSchema is the JSON-Schema subset this server emits for a tool:
// an object type with flat properties, a required list, and
// additionalProperties pinned to false.
type ToolInputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]PropertyDetail `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties"`
}

// Tool defines a tool offered by the server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ListToolsRequestParams defines the parameters for a 'tools/list' request.
type ListToolsRequestParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListToolsResult defines the result payload for a successful 'tools/list'
// response. NextCursor is always null: this server does not paginate, it
// forwards whatever the upstream pipeline returned in one shot.
type ListToolsResult struct {
	Tools      []Tool  `json:"tools"`
	NextCursor *string `json:"nextCursor"`
}

// CallToolRequestParams defines the parameters for a 'tools/call' request.
type CallToolRequestParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult defines the result payload for a 'tools/call' response.
//
// The source this was distilled from guards its result builder with
// inverted null checks (it rejects non-nil content and accepts nil). That
// is treated as a bug here: BuildCallToolResult below enforces the intended
// contract instead — reject nil content, accept non-nil.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError *bool     `json:"isError,omitempty"`
}

// BuildCallToolResult constructs a CallToolResult from non-nil content,
// rejecting a nil/empty slice since every call path that builds one always
// has at least the pipeline's response to report.
func BuildCallToolResult(content []Content, isErr bool) (*CallToolResult, error) {
	if len(content) == 0 {
		return nil, errNilCallToolContent
	}
	result := &CallToolResult{Content: content}
	if isErr {
		result.IsError = &isErr
	}
	return result, nil
}

var errNilCallToolContent = &MCPError{ErrorPayload{Code: CodeInternalError, Message: "call tool result content must not be empty"}}

// MarshalJSON renders CallToolResult.Content through the Content interface
// so each entry keeps its own "type" tag.
func (r CallToolResult) MarshalJSON() ([]byte, error) {
	type alias struct {
		Content []Content `json:"content"`
		IsError *bool     `json:"isError,omitempty"`
	}
	return json.Marshal(alias{Content: r.Content, IsError: r.IsError})
}
