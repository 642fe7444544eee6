package server

import (
	"context"
	"encoding/json"

	"github.com/slpipeline/mcpgateway/protocol"
	"github.com/slpipeline/mcpgateway/session"
)

// handleInitialize performs the handshake: negotiate a protocol version,
// capture the client's capabilities/implementation info on the session,
// and transition it Created -> Initialized. Adapted from the teacher's
// LifecycleHandler.InitializeHandler, generalized from a hardcoded
// two-version check into NegotiateVersion's configurable ordered list.
func (s *Server) handleInitialize(ctx context.Context, ex *session.Exchange, params json.RawMessage) (interface{}, error) {
	var req protocol.InitializeRequestParams
	if err := protocol.UnmarshalPayload(params, &req); err != nil {
		return nil, protocol.NewInvalidParamsError("invalid initialize params: " + err.Error())
	}

	negotiated := s.NegotiateVersion(req.ProtocolVersion)
	ex.MarkInitialized(req.Capabilities, req.ClientInfo, negotiated)

	s.logger.Info("session initialized",
		"sessionId", ex.SessionID(),
		"clientName", req.ClientInfo.Name,
		"clientVersion", req.ClientInfo.Version,
		"requestedVersion", req.ProtocolVersion,
		"negotiatedVersion", negotiated,
	)

	return protocol.InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    s.capabilities,
		ServerInfo:      protocol.Implementation{Name: s.name, Version: s.version},
	}, nil
}

// handleInitializedNotification just acknowledges the client's
// post-handshake notification; there is nothing further to do.
func (s *Server) handleInitializedNotification(_ context.Context, ex *session.Exchange, _ json.RawMessage) {
	s.logger.Debug("client acknowledged initialization", "sessionId", ex.SessionID())
}
