// Package sse provides the MCP server transport: SSE for server->client
// push, HTTP POST for client->server delivery, using net/http only — the
// same hybrid approach as the teacher's transport/sse package, rewired
// here onto the session package's correlation-aware Session instead of a
// push-only ClientSession.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/slpipeline/mcpgateway/logging"
	"github.com/slpipeline/mcpgateway/protocol"
	"github.com/slpipeline/mcpgateway/session"
)

// sink implements session.Sink over a buffered SSE event queue drained by
// the HandleSSE goroutine that owns the http.ResponseWriter. Writes to an
// http.ResponseWriter are not safe to call from multiple goroutines, so
// every frame funnels through this one queue to preserve per-session FIFO
// ordering on the wire.
type sink struct {
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func newSink() *sink {
	return &sink{
		queue: make(chan []byte, 256),
		done:  make(chan struct{}),
	}
}

func (s *sink) Send(frame []byte) error {
	select {
	case s.queue <- frame:
		return nil
	case <-s.done:
		return session.ErrSessionClosed
	default:
		return fmt.Errorf("sse event queue full")
	}
}

func (s *sink) close() {
	s.once.Do(func() { close(s.done) })
}

// Manager owns the set of live sessions and the two HTTP routes that
// implement the transport provider (spec.md §4.2).
type Manager struct {
	dispatcher session.Dispatcher
	logger     logging.Logger

	sessions sync.Map // sessionID -> *session.Session

	basePath        string
	sseEndpoint     string
	messageEndpoint string
}

// Options configures a Manager.
type Options struct {
	Logger          logging.Logger
	BasePath        string
	SSEEndpoint     string
	MessageEndpoint string
}

// NewManager wires a Manager to the server-side Dispatcher (the server
// facade). The circular server<->transport dependency is resolved by
// constructing the server first, then the Manager, then handing the
// Manager back to the server via Server.AttachBroadcaster.
func NewManager(dispatcher session.Dispatcher, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	basePath := normalizeBase(opts.BasePath)
	sseEndpoint := normalizePath(opts.SSEEndpoint, "/sse")
	messageEndpoint := normalizePath(opts.MessageEndpoint, "/message")

	return &Manager{
		dispatcher:      dispatcher,
		logger:          logger,
		basePath:        basePath,
		sseEndpoint:     sseEndpoint,
		messageEndpoint: messageEndpoint,
	}
}

func normalizeBase(p string) string {
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimSuffix(p, "/")
}

func normalizePath(p, def string) string {
	if p == "" {
		p = def
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// ServeHTTP routes to the SSE stream or the message-delivery endpoint.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	ssePath := m.basePath + m.sseEndpoint
	messagePath := m.basePath + m.messageEndpoint

	switch path {
	case ssePath:
		m.HandleSSE(w, r)
	case messagePath:
		m.HandleMessage(w, r)
	default:
		http.NotFound(w, r)
	}
}

// HandleSSE opens a new session: generates a session id (delegated to
// session.New), registers the session, emits the one-time "endpoint" event
// carrying the relative POST URL, then blocks writing queued frames until
// the client disconnects or the server shuts down.
func (m *Manager) HandleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sk := newSink()
	sess := session.New(sk, m.logger)

	m.sessions.Store(sess.ID(), sess)
	defer func() {
		m.sessions.Delete(sess.ID())
		sess.Close()
		sk.close()
	}()

	m.logger.Info("sse session opened", "sessionId", sess.ID(), "remoteAddr", r.RemoteAddr)

	endpointURL := m.messageEndpointURL(sess.ID())
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpointURL)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case frame := <-sk.queue:
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame); err != nil {
				m.logger.Warn("sse write failed, closing stream", "sessionId", sess.ID(), "error", err)
				return
			}
			flusher.Flush()
		case <-sk.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// HandleMessage accepts one JSON-RPC message over POST and hands it to the
// target session's inbound router. Per spec.md §4.2 the HTTP response is
// returned as soon as the message is accepted, not once any handler it
// triggers has completed — the handler's result, if any, arrives later
// over the SSE stream.
func (m *Manager) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeJSONRPCError(w, nil, protocol.CodeInvalidRequest, "missing sessionId query parameter")
		return
	}

	value, ok := m.sessions.Load(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess := value.(*session.Session)

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSONRPCError(w, nil, protocol.CodeParseError, fmt.Sprintf("parse error: %v", err))
		return
	}

	sess.HandleInbound(r.Context(), raw, m.dispatcher)

	w.WriteHeader(http.StatusOK)
}

// NotifyAll broadcasts a notification to every registered session,
// best-effort — a delivery failure on one session never aborts delivery
// to the others.
func (m *Manager) NotifyAll(ctx context.Context, method string, params interface{}) {
	m.sessions.Range(func(_, value interface{}) bool {
		sess := value.(*session.Session)
		if err := sess.SendNotification(method, params); err != nil {
			m.logger.Warn("broadcast failed for session", "sessionId", sess.ID(), "method", method, "error", err)
		}
		return true
	})
}

func (m *Manager) messageEndpointURL(sessionID string) string {
	return fmt.Sprintf("%s%s?sessionId=%s", m.basePath, m.messageEndpoint, sessionID)
}

// writeJSONRPCError is used by the message endpoint for transport-level
// failures that stop a message before it reaches a session (missing
// sessionId, unparseable body).
func writeJSONRPCError(w http.ResponseWriter, id interface{}, code protocol.ErrorCode, message string) {
	resp := protocol.NewErrorResponse(id, &protocol.ErrorPayload{Code: code, Message: message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(resp)
}
