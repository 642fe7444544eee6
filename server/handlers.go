package server

import (
	"context"
	"encoding/json"

	"github.com/slpipeline/mcpgateway/protocol"
	"github.com/slpipeline/mcpgateway/session"
)

// handlePing always answers with a non-null empty object, regardless of
// params (spec.md §4.4, §8 invariant).
func (s *Server) handlePing(_ context.Context, _ *session.Exchange, _ json.RawMessage) (interface{}, error) {
	return struct{}{}, nil
}

// handleListTools returns the union of the upstream pipeline's current
// tool list and any locally registered tools, as a ListToolsResult. This
// server never paginates: nextCursor is always null.
func (s *Server) handleListTools(ctx context.Context, _ *session.Exchange, params json.RawMessage) (interface{}, error) {
	tools := s.snapshotTools()

	if s.pipeline != nil {
		pipelineTools, err := s.pipeline.ListTools(ctx, params)
		if err != nil {
			return nil, protocol.NewInternalError("upstream pipeline tools/list failed: " + err.Error())
		}
		tools = append(tools, pipelineTools...)
	}

	return protocol.ListToolsResult{Tools: tools, NextCursor: nil}, nil
}

// handleCallTool forwards a tool invocation to the upstream pipeline,
// injecting sl_tool_name into the arguments, and wraps the pipeline's
// response as a single TextContent entry.
func (s *Server) handleCallTool(ctx context.Context, _ *session.Exchange, params json.RawMessage) (interface{}, error) {
	var req protocol.CallToolRequestParams
	if err := protocol.UnmarshalPayload(params, &req); err != nil {
		return nil, protocol.NewInvalidParamsError("invalid tools/call params: " + err.Error())
	}
	if req.Name == "" {
		return nil, protocol.NewInvalidParamsError("tools/call requires a tool name")
	}
	if s.pipeline == nil {
		return nil, &protocol.MCPError{ErrorPayload: protocol.ErrorPayload{
			Code:    protocol.CodeMCPToolNotFound,
			Message: "no upstream pipeline configured",
		}}
	}

	raw, err := s.pipeline.CallTool(ctx, req.Name, req.Arguments)
	if err != nil {
		return nil, &protocol.MCPError{ErrorPayload: protocol.ErrorPayload{
			Code:    protocol.CodeMCPToolExecutionError,
			Message: "upstream pipeline tools/call failed: " + err.Error(),
		}}
	}

	result, buildErr := protocol.BuildCallToolResult([]protocol.Content{protocol.NewTextContent(string(raw))}, false)
	if buildErr != nil {
		return nil, buildErr
	}
	return result, nil
}

// handleSetLevel updates the server's minimum logging level. The wire
// schema's LoggingLevel has five values (error/warn/info/debug/trace); an
// unrecognized value is rejected as invalid params rather than silently
// accepted.
func (s *Server) handleSetLevel(_ context.Context, _ *session.Exchange, params json.RawMessage) (interface{}, error) {
	var req protocol.SetLevelRequestParams
	if err := protocol.UnmarshalPayload(params, &req); err != nil {
		return nil, protocol.NewInvalidParamsError("invalid logging/setLevel params: " + err.Error())
	}
	if !req.Level.Valid() {
		return nil, protocol.NewInvalidParamsError("unknown logging level: " + string(req.Level))
	}

	s.logLevelMu.Lock()
	s.logLevel = req.Level
	s.logLevelMu.Unlock()

	return struct{}{}, nil
}

// MinLogLevel returns the server's current minimum logging level, as set
// by the most recent logging/setLevel request (protocol.LogLevelInfo by
// default).
func (s *Server) MinLogLevel() protocol.LoggingLevel {
	s.logLevelMu.RLock()
	defer s.logLevelMu.RUnlock()
	return s.logLevel
}
