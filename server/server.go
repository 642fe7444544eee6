// Package server implements the MCP server facade: the builder that
// assembles declared capabilities, the tool registry, and the
// request/notification handler tables into an immutable Server, grounded
// in the teacher's functional-options builder (server/server.go) but
// generalized so tools/list and tools/call are backed by the upstream
// pipeline rather than locally-registered Go functions.
package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/slpipeline/mcpgateway/logging"
	"github.com/slpipeline/mcpgateway/pipeline"
	"github.com/slpipeline/mcpgateway/protocol"
	"github.com/slpipeline/mcpgateway/session"
)

// RequestHandlerFunc answers a JSON-RPC request. A non-nil error is folded
// into a JSON-RPC error response by the dispatcher; returning an
// *protocol.MCPError lets the handler control code/message precisely.
type RequestHandlerFunc func(ctx context.Context, ex *session.Exchange, params json.RawMessage) (interface{}, error)

// NotificationHandlerFunc handles a one-way JSON-RPC notification.
type NotificationHandlerFunc func(ctx context.Context, ex *session.Exchange, params json.RawMessage)

// Broadcaster is the transport-side capability the server needs to push a
// notification to every connected session (used for
// notifications/tools/list_changed). transport/sse.Manager satisfies this.
type Broadcaster interface {
	NotifyAll(ctx context.Context, method string, params interface{})
}

// Server is the immutable MCP server facade. Build it with New and a set
// of Options; it implements session.Dispatcher.
type Server struct {
	name    string
	version string

	capabilities      protocol.ServerCapabilities
	supportedVersions []string

	pipeline *pipeline.Client
	logger   logging.Logger

	requestHandlers      map[string]RequestHandlerFunc
	notificationHandlers map[string]NotificationHandlerFunc

	broadcaster Broadcaster

	registryMu sync.RWMutex
	tools      []protocol.Tool

	logLevelMu sync.RWMutex
	logLevel   protocol.LoggingLevel
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithCapabilities declares the server's capability set.
func WithCapabilities(caps protocol.ServerCapabilities) Option {
	return func(s *Server) { s.capabilities = caps }
}

// WithSupportedVersions sets the ordered list of protocol versions this
// server accepts, most-preferred first. The first entry is returned to a
// client whose requested version isn't in the list (spec.md §4.3, §9).
func WithSupportedVersions(versions ...string) Option {
	return func(s *Server) { s.supportedVersions = versions }
}

// WithPipeline wires the upstream tool pipeline client that backs
// tools/list and tools/call.
func WithPipeline(client *pipeline.Client) Option {
	return func(s *Server) { s.pipeline = client }
}

// WithLogger sets the server's structured logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithTools seeds the server's local tool registry at construction time.
func WithTools(tools ...protocol.Tool) Option {
	return func(s *Server) { s.tools = append(s.tools, tools...) }
}

// New builds an immutable Server identified by name/version and installs
// the built-in handlers for ping, tools/list (only when the tools
// capability is declared), tools/call, logging/setLevel, initialize, and
// notifications/initialized.
func New(name, version string, opts ...Option) *Server {
	s := &Server{
		name:                 name,
		version:              version,
		supportedVersions:    []string{protocol.DefaultProtocolVersion},
		logger:               logging.Nop(),
		requestHandlers:      make(map[string]RequestHandlerFunc),
		notificationHandlers: make(map[string]NotificationHandlerFunc),
		logLevel:             protocol.LogLevelInfo,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.requestHandlers[protocol.MethodInitialize] = s.handleInitialize
	s.requestHandlers[protocol.MethodPing] = s.handlePing
	if s.capabilities.Tools != nil {
		s.requestHandlers[protocol.MethodListTools] = s.handleListTools
	}
	s.requestHandlers[protocol.MethodCallTool] = s.handleCallTool
	s.requestHandlers[protocol.MethodLoggingSetLevel] = s.handleSetLevel
	s.notificationHandlers[protocol.MethodInitialized] = s.handleInitializedNotification

	return s
}

// AttachBroadcaster wires the transport's NotifyAll after both the server
// and the transport manager have been constructed, resolving the
// server<->transport circular dependency (the manager is built with this
// server as its Dispatcher, so it cannot exist before the server does).
func (s *Server) AttachBroadcaster(b Broadcaster) { s.broadcaster = b }

// HandleRequest implements session.Dispatcher. Unknown methods are answered
// with CodeMethodNotFound. A panicking handler is recovered by the calling
// session (session.Session.dispatchRequest), which folds it into a
// -32603 response and closes that one session rather than letting it
// reach this goroutine's top and crash the process (spec.md §7).
func (s *Server) HandleRequest(ctx context.Context, ex *session.Exchange, method string, params json.RawMessage) (interface{}, *protocol.ErrorPayload) {
	handler, ok := s.requestHandlers[method]
	if !ok {
		return nil, &protocol.NewMethodNotFoundError(method).ErrorPayload
	}
	result, err := handler(ctx, ex, params)
	if err != nil {
		return nil, protocol.AsErrorPayload(err)
	}
	return result, nil
}

// HandleNotification implements session.Dispatcher. A missing handler is a
// silent drop, per spec.md §4.3.
func (s *Server) HandleNotification(ctx context.Context, ex *session.Exchange, method string, params json.RawMessage) {
	handler, ok := s.notificationHandlers[method]
	if !ok {
		return
	}
	handler(ctx, ex, params)
}

// NegotiateVersion echoes requested if the server supports it, otherwise
// returns the server's most-preferred (first configured) version. This
// never fails the initialize request (spec.md §9, lenient negotiation).
func (s *Server) NegotiateVersion(requested string) string {
	for _, v := range s.supportedVersions {
		if v == requested {
			return requested
		}
	}
	if len(s.supportedVersions) > 0 {
		return s.supportedVersions[0]
	}
	return protocol.DefaultProtocolVersion
}
