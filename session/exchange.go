package session

import (
	"context"

	"github.com/slpipeline/mcpgateway/protocol"
)

// Exchange is the capability handed to a request handler so it can issue
// server-to-client requests without depending on the Session type itself.
// It holds no mutable state of its own — it is a thin, narrow view onto the
// owning session's outbound path, grounded in the MCP schema's
// ListRootsRequestParams/ListRootsResult pairing (protocol/messages.go).
type Exchange struct {
	session *Session
}

// SessionID returns the id of the session this exchange belongs to, useful
// for handler-side logging.
func (e *Exchange) SessionID() string { return e.session.ID() }

// ClientInfo returns the client implementation info captured at handshake.
func (e *Exchange) ClientInfo() protocol.Implementation { return e.session.ClientInfo() }

// MarkInitialized records the negotiated handshake details on the owning
// session and transitions it Created -> Initialized.
func (e *Exchange) MarkInitialized(caps protocol.ClientCapabilities, info protocol.Implementation, version string) {
	e.session.MarkInitialized(caps, info, version)
}

// ListRoots asks the client to enumerate its root workspaces.
func (e *Exchange) ListRoots(ctx context.Context, cursor string) (*protocol.ListRootsResult, error) {
	raw, err := e.session.SendRequest(ctx, protocol.MethodListRoots, protocol.ListRootsRequestParams{Cursor: cursor})
	if err != nil {
		return nil, err
	}
	var result protocol.ListRootsResult
	if err := protocol.UnmarshalPayload(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
