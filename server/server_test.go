package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slpipeline/mcpgateway/logging"
	"github.com/slpipeline/mcpgateway/pipeline"
	"github.com/slpipeline/mcpgateway/protocol"
	"github.com/slpipeline/mcpgateway/session"
)

func newTestExchange(t *testing.T) (*session.Exchange, *session.Session) {
	t.Helper()
	sess := session.New(noopSink{}, logging.Nop())
	return sess.Exchange(), sess
}

type noopSink struct{}

func (noopSink) Send([]byte) error { return nil }

func TestPingAlwaysReturnsNonNilObject(t *testing.T) {
	srv := New("custom-server", "0.0.1")
	ex, _ := newTestExchange(t)

	result, errPayload := srv.HandleRequest(context.Background(), ex, protocol.MethodPing, nil)
	require.Nil(t, errPayload)
	require.NotNil(t, result)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	srv := New("custom-server", "0.0.1")
	ex, _ := newTestExchange(t)

	_, errPayload := srv.HandleRequest(context.Background(), ex, "foo/bar", nil)
	require.NotNil(t, errPayload)
	assert.Equal(t, protocol.CodeMethodNotFound, errPayload.Code)
}

func TestInitializeNegotiatesHighestVersionOnMismatch(t *testing.T) {
	srv := New("custom-server", "0.0.1", WithSupportedVersions("2024-11-05"))
	ex, _ := newTestExchange(t)

	params, _ := json.Marshal(protocol.InitializeRequestParams{
		ProtocolVersion: "1999-01-01",
		ClientInfo:      protocol.Implementation{Name: "c", Version: "1"},
	})

	result, errPayload := srv.HandleRequest(context.Background(), ex, protocol.MethodInitialize, params)
	require.Nil(t, errPayload)

	initResult := result.(protocol.InitializeResult)
	assert.Equal(t, "2024-11-05", initResult.ProtocolVersion)
	assert.Equal(t, "custom-server", initResult.ServerInfo.Name)
}

func TestToolsListUsesUpstreamPipeline(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"tools":[{"name":"echo","description":"e","parameters":[{"name":"msg","type":"STRING","required":true}]}]}]`))
	}))
	defer upstream.Close()

	srv := New("custom-server", "0.0.1",
		WithCapabilities(protocol.ServerCapabilities{Tools: &struct {
			ListChanged bool `json:"listChanged,omitempty"`
		}{}}),
		WithPipeline(pipeline.New(pipeline.Config{URL: upstream.URL})),
	)
	ex, _ := newTestExchange(t)

	result, errPayload := srv.HandleRequest(context.Background(), ex, protocol.MethodListTools, json.RawMessage(`{}`))
	require.Nil(t, errPayload)

	listResult := result.(protocol.ListToolsResult)
	require.Len(t, listResult.Tools, 1)
	assert.Equal(t, "echo", listResult.Tools[0].Name)
	assert.Nil(t, listResult.NextCursor)
}

func TestToolsCallReturnsTextContent(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "echo", body["sl_tool_name"])
		_, _ = w.Write([]byte(`[{"reply":"hi"}]`))
	}))
	defer upstream.Close()

	srv := New("custom-server", "0.0.1", WithPipeline(pipeline.New(pipeline.Config{URL: upstream.URL})))
	ex, _ := newTestExchange(t)

	params, _ := json.Marshal(protocol.CallToolRequestParams{Name: "echo", Arguments: json.RawMessage(`{"msg":"hi"}`)})
	result, errPayload := srv.HandleRequest(context.Background(), ex, protocol.MethodCallTool, params)
	require.Nil(t, errPayload)

	callResult := result.(*protocol.CallToolResult)
	require.Len(t, callResult.Content, 1)
	text := callResult.Content[0].(protocol.TextContent)
	assert.JSONEq(t, `{"reply":"hi"}`, text.Text)
}

func TestAddToolRejectsDuplicateWithoutMutatingRegistry(t *testing.T) {
	srv := New("custom-server", "0.0.1", WithTools(protocol.Tool{Name: "echo"}))

	err := srv.AddTool(context.Background(), protocol.Tool{Name: "echo"})
	require.Error(t, err)
	assert.Len(t, srv.snapshotTools(), 1)
}

type recordingBroadcaster struct {
	calls []string
}

func (r *recordingBroadcaster) NotifyAll(_ context.Context, method string, _ interface{}) {
	r.calls = append(r.calls, method)
}

func TestAddToolBroadcastsWhenListChangedDeclared(t *testing.T) {
	srv := New("custom-server", "0.0.1", WithCapabilities(protocol.ServerCapabilities{Tools: &struct {
		ListChanged bool `json:"listChanged,omitempty"`
	}{ListChanged: true}}))
	b := &recordingBroadcaster{}
	srv.AttachBroadcaster(b)

	require.NoError(t, srv.AddTool(context.Background(), protocol.Tool{Name: "new-tool"}))
	require.Len(t, b.calls, 1)
	assert.Equal(t, protocol.MethodNotifyToolsListChanged, b.calls[0])
}
