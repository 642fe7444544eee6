// Package protocol defines the structures and constants for the Model Context Protocol (MCP).
package protocol

// --- Initialization Sequence Structures ---

// Implementation describes the name and version of an MCP implementation
// (client or server).
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities describes features the client supports. Only the
// "roots" family is modeled; the rest of the schema (sampling, experimental,
// authorization) is out of scope for this core.
type ClientCapabilities struct {
	Roots *struct {
		ListChanged bool `json:"listChanged,omitempty"`
	} `json:"roots,omitempty"`
}

// ServerCapabilities describes features the server supports. Declared once
// at build time and immutable thereafter.
type ServerCapabilities struct {
	Logging *struct{} `json:"logging,omitempty"`
	Tools   *struct {
		ListChanged bool `json:"listChanged,omitempty"`
	} `json:"tools,omitempty"`
}

// InitializeRequestParams defines the parameters for the 'initialize' request.
type InitializeRequestParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult defines the result payload for a successful 'initialize'
// response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// --- Content Structures ---

// Content is the tagged union for pieces of a tool result. Only TextContent
// is produced by this server; the interface is kept so the wire shape
// matches the full MCP content schema and future content kinds slot in
// without changing CallToolResult's shape.
type Content interface {
	GetType() string
}

// TextContent represents textual content, the only content kind this
// server's pipeline-backed tools/call path ever emits.
type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (tc TextContent) GetType() string { return tc.Type }

// NewTextContent builds the content entry returned by tools/call.
func NewTextContent(text string) TextContent {
	return TextContent{Type: "text", Text: text}
}

// --- Logging Structures ---

// LoggingLevel mirrors the five-value enum the MCP wire schema declares for
// 'logging/setLevel'; this is deliberately not the eight-level syslog scale
// used internally by some logging libraries.
type LoggingLevel string

const (
	LogLevelError LoggingLevel = "error"
	LogLevelWarn  LoggingLevel = "warn"
	LogLevelInfo  LoggingLevel = "info"
	LogLevelDebug LoggingLevel = "debug"
	LogLevelTrace LoggingLevel = "trace"
)

// Valid reports whether l is one of the five levels the wire schema defines.
func (l LoggingLevel) Valid() bool {
	switch l {
	case LogLevelError, LogLevelWarn, LogLevelInfo, LogLevelDebug, LogLevelTrace:
		return true
	default:
		return false
	}
}

// SetLevelRequestParams defines parameters for 'logging/setLevel'.
type SetLevelRequestParams struct {
	Level LoggingLevel `json:"level"`
}

// --- Roots Structures ---

// Root represents a root context or workspace available on the client.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ListRootsRequestParams defines parameters for 'roots/list'.
type ListRootsRequestParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListRootsResult defines the result for 'roots/list'.
type ListRootsResult struct {
	Roots []Root `json:"roots"`
}

// --- List Changed Notification ---

// ToolsListChangedParams defines parameters for
// 'notifications/tools/list_changed' (always empty).
type ToolsListChangedParams struct{}
