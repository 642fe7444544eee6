// Package session implements the per-client MCP session: the lifecycle
// state machine, the inbound message router, and the correlation table
// that lets the server issue its own requests to the client (e.g.
// "roots/list") and await a matching response.
//
// There is no teacher precedent for the correlation table itself — the
// source's ClientSession interface only pushes frames outward — so this
// file is new, built in the teacher's idiom: atomics for lifecycle flags,
// a buffered channel per in-flight call, sync.Once for close-once
// semantics, mirroring transport/sse's sseSession.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/slpipeline/mcpgateway/logging"
	"github.com/slpipeline/mcpgateway/protocol"
)

// State is the session lifecycle: Created -> Initialized -> Closed.
type State int32

const (
	StateCreated State = iota
	StateInitialized
	StateClosed
)

// ErrSessionClosed is returned to any outbound request still pending when
// the session closes, and by SendRequest/SendNotification called after close.
var ErrSessionClosed = errors.New("session closed")

// Sink is the outbound half of a session: one frame per call, with the
// transport responsible for actually writing it (SSE event framing, HTTP
// body, or anything else). Sink implementations must serialize writes
// themselves so that per-session ordering holds.
type Sink interface {
	Send(frame []byte) error
}

// Dispatcher resolves method names to handlers. The server facade
// implements this; Session only knows how to route to it and turn the
// result into a wire Response/Notification.
type Dispatcher interface {
	HandleRequest(ctx context.Context, ex *Exchange, method string, params json.RawMessage) (interface{}, *protocol.ErrorPayload)
	HandleNotification(ctx context.Context, ex *Exchange, method string, params json.RawMessage)
}

type pendingCall struct {
	ch chan pendingResult
}

type pendingResult struct {
	raw    json.RawMessage
	err    *protocol.ErrorPayload
	closed bool
}

// Session is one connected MCP client.
type Session struct {
	id     string
	sink   Sink
	logger logging.Logger

	state atomic.Int32

	mu      sync.Mutex
	pending map[string]*pendingCall
	nextID  atomic.Int64

	clientCaps        protocol.ClientCapabilities
	clientInfo        protocol.Implementation
	negotiatedVersion string

	exchange *Exchange

	closeOnce sync.Once
}

// New creates a Session bound to sink, in the Created state. The logger is
// scoped with the session id so every log line it emits is attributable to
// one client without the caller repeating the id at every call site.
func New(sink Sink, logger logging.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		id:      id,
		sink:    sink,
		logger:  logger.With("sessionId", id),
		pending: make(map[string]*pendingCall),
	}
	s.exchange = &Exchange{session: s}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return State(s.state.Load()) }

// Exchange returns the capability handle passed to handlers invoked on
// this session.
func (s *Session) Exchange() *Exchange { return s.exchange }

// MarkInitialized transitions Created -> Initialized and records the
// negotiated handshake details. Safe to call only once; later calls are
// no-ops, matching the "initialize is handled once" invariant.
func (s *Session) MarkInitialized(caps protocol.ClientCapabilities, info protocol.Implementation, version string) {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateInitialized)) {
		return
	}
	s.clientCaps = caps
	s.clientInfo = info
	s.negotiatedVersion = version
}

func (s *Session) ClientInfo() protocol.Implementation { return s.clientInfo }

// HandleInbound decodes one wire message and routes it: a Request is
// dispatched to d and answered with exactly one Response; a Notification
// is dispatched and never answered; a Response completes (or drops) a
// pending outbound call. Request/notification handling runs on its own
// goroutine so that a slow handler never blocks the next inbound message
// on this session (pipelined dispatch, spec.md §5).
func (s *Session) HandleInbound(ctx context.Context, raw []byte, d Dispatcher) {
	if s.State() == StateClosed {
		s.logger.Warn("dropping inbound message on closed session")
		return
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		s.logger.Warn("malformed inbound message", "error", err)
		s.sendResponse(protocol.NewErrorResponse(nil, &protocol.ErrorPayload{
			Code:    protocol.CodeParseError,
			Message: err.Error(),
		}))
		return
	}

	// The request/notification handler outlives this call — HandleMessage
	// returns 200 as soon as the message is accepted (spec.md §4.2), and
	// net/http cancels r.Context() the moment that response is written.
	// Detach so the handler's own outbound calls (e.g. the upstream
	// pipeline fan-out) aren't cancelled out from under it; the session's
	// own Close still ends any work that cares to check s.State().
	handlerCtx := context.WithoutCancel(ctx)

	switch msg.Kind {
	case protocol.KindRequest:
		req := msg.Req
		go s.dispatchRequest(handlerCtx, d, req)

	case protocol.KindNotification:
		notif := msg.Notif
		go d.HandleNotification(handlerCtx, s.exchange, notif.Method, notif.Params)

	case protocol.KindResponse:
		s.completeOutbound(msg.Resp)
	}
}

// methodAllowedBeforeInit reports whether method may be dispatched before
// the session has completed the initialize handshake (spec.md §3: no
// request but initialize/ping may reach a handler before lifecycle =
// Initialized).
func methodAllowedBeforeInit(method string) bool {
	return method == protocol.MethodInitialize || method == protocol.MethodPing
}

// dispatchRequest enforces the lifecycle gate, recovers a panicking
// handler into a -32603 response instead of letting it crash the process
// (spec.md §7: a fatal error on one session closes that session only, it
// never brings down the others), and always answers with exactly one
// Response.
func (s *Session) dispatchRequest(ctx context.Context, d Dispatcher, req *protocol.Request) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked, closing session", "method", req.Method, "panic", r)
			s.sendResponse(protocol.NewErrorResponse(req.ID, &protocol.ErrorPayload{
				Code:    protocol.CodeInternalError,
				Message: fmt.Sprintf("internal error handling %s", req.Method),
			}))
			s.Close()
		}
	}()

	if s.State() != StateInitialized && !methodAllowedBeforeInit(req.Method) {
		s.sendResponse(protocol.NewErrorResponse(req.ID, &protocol.ErrorPayload{
			Code:    protocol.CodeInvalidRequest,
			Message: fmt.Sprintf("session not initialized: %s is not permitted before initialize", req.Method),
		}))
		return
	}

	result, errPayload := d.HandleRequest(ctx, s.exchange, req.Method, req.Params)
	if errPayload != nil {
		s.sendResponse(protocol.NewErrorResponse(req.ID, errPayload))
		return
	}
	s.sendResponse(protocol.NewSuccessResponse(req.ID, result))
}

func (s *Session) sendResponse(resp *protocol.Response) {
	if s.State() == StateClosed {
		return
	}
	frame, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", "error", err)
		return
	}
	if err := s.sink.Send(frame); err != nil {
		s.logger.Warn("failed to send response frame", "error", err)
	}
}

// SendNotification pushes a fire-and-forget frame to the client.
func (s *Session) SendNotification(method string, params interface{}) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}
	notif, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	return s.sink.Send(frame)
}

// SendRequest issues a server-initiated request and blocks until the
// matching Response arrives, ctx is cancelled, or the session closes.
func (s *Session) SendRequest(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if s.State() == StateClosed {
		return nil, ErrSessionClosed
	}

	id := fmt.Sprintf("srv-%d", s.nextID.Add(1))
	call := &pendingCall{ch: make(chan pendingResult, 1)}

	s.mu.Lock()
	s.pending[id] = call
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	frame, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := s.sink.Send(frame); err != nil {
		return nil, err
	}

	select {
	case res := <-call.ch:
		if res.closed {
			return nil, ErrSessionClosed
		}
		if res.err != nil {
			return nil, &protocol.MCPError{ErrorPayload: *res.err}
		}
		return res.raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) completeOutbound(resp *protocol.Response) {
	id, ok := resp.ID.(string)
	if !ok {
		if f, isFloat := resp.ID.(float64); isFloat {
			id = fmt.Sprintf("%v", f)
		}
	}

	s.mu.Lock()
	call, found := s.pending[id]
	if found {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !found {
		s.logger.Warn("dropping response with no matching outbound request", "id", resp.ID)
		return
	}

	var raw json.RawMessage
	if resp.Result != nil {
		raw, _ = json.Marshal(resp.Result)
	}
	call.ch <- pendingResult{raw: raw, err: resp.Error}
}

// Close transitions the session to Closed, fails every pending outbound
// call with ErrSessionClosed, and prevents further frames from being
// written to the sink. It is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))

		s.mu.Lock()
		pending := s.pending
		s.pending = make(map[string]*pendingCall)
		s.mu.Unlock()

		for _, call := range pending {
			select {
			case call.ch <- pendingResult{closed: true}:
			default:
			}
		}
	})
}
