package server

import (
	"context"
	"fmt"

	"github.com/slpipeline/mcpgateway/protocol"
)

// ErrDuplicateTool is returned by AddTool when a tool with the same name
// is already registered; the prior registration is left untouched.
type ErrDuplicateTool struct{ Name string }

func (e *ErrDuplicateTool) Error() string { return fmt.Sprintf("tool %q already registered", e.Name) }

// ErrNilToolSpec is returned by AddTool for a zero-value Tool spec.
var ErrNilToolSpec = fmt.Errorf("tool spec must not be empty")

// snapshotTools returns a read-only copy of the locally registered tools.
// Reads never take the write lock: callers get the slice as it stood at
// call time (copy-on-write registry, spec.md §5).
func (s *Server) snapshotTools() []protocol.Tool {
	s.registryMu.RLock()
	defer s.registryMu.RUnlock()
	out := make([]protocol.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// AddTool appends spec to the registry. Duplicate names and empty specs
// are rejected without mutating existing state. When the server declared
// tools.listChanged, successful registration broadcasts
// notifications/tools/list_changed to every connected session.
func (s *Server) AddTool(ctx context.Context, spec protocol.Tool) error {
	if spec.Name == "" {
		return ErrNilToolSpec
	}

	s.registryMu.Lock()
	for _, t := range s.tools {
		if t.Name == spec.Name {
			s.registryMu.Unlock()
			return &ErrDuplicateTool{Name: spec.Name}
		}
	}
	next := make([]protocol.Tool, len(s.tools)+1)
	copy(next, s.tools)
	next[len(s.tools)] = spec
	s.tools = next
	s.registryMu.Unlock()

	if s.capabilities.Tools != nil && s.capabilities.Tools.ListChanged && s.broadcaster != nil {
		s.broadcaster.NotifyAll(ctx, protocol.MethodNotifyToolsListChanged, protocol.ToolsListChangedParams{})
	}
	return nil
}
