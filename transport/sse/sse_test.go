package sse

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slpipeline/mcpgateway/logging"
	"github.com/slpipeline/mcpgateway/pipeline"
	"github.com/slpipeline/mcpgateway/protocol"
	"github.com/slpipeline/mcpgateway/server"
)

// openSSE opens the SSE stream and returns the reader and the message
// endpoint URL, ready for POSTing requests against.
func openSSE(t *testing.T, baseURL string) (*bufio.Reader, string) {
	t.Helper()
	resp, err := http.Get(baseURL + "/sse")
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	reader := bufio.NewReader(resp.Body)
	eventType, data := readSSEEvent(t, reader)
	require.Equal(t, "endpoint", eventType)
	return reader, baseURL + data
}

// readSSEMessage waits (with a test timeout) for the next "event: message"
// frame and decodes its data as JSON.
func readSSEMessage(t *testing.T, reader *bufio.Reader) map[string]interface{} {
	t.Helper()
	type result struct {
		decoded map[string]interface{}
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		eventType, data := readSSEEvent(t, reader)
		if eventType != "message" {
			ch <- result{err: assert.AnError}
			return
		}
		var decoded map[string]interface{}
		err := json.Unmarshal([]byte(data), &decoded)
		ch <- result{decoded: decoded, err: err}
	}()

	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.decoded
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message event over SSE")
		return nil
	}
}

// readSSEEvent reads one "event: ...\ndata: ...\n\n" frame off r.
func readSSEEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	eventLine, err := r.ReadString('\n')
	require.NoError(t, err)
	dataLine, err := r.ReadString('\n')
	require.NoError(t, err)
	_, _ = r.ReadString('\n') // trailing blank line

	event := strings.TrimPrefix(strings.TrimSpace(eventLine), "event: ")
	data := strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")
	return event, data
}

func TestHandshakeOverSSE(t *testing.T) {
	srv := server.New("custom-server", "0.0.1")
	manager := NewManager(srv, Options{Logger: logging.Nop()})
	srv.AttachBroadcaster(manager)

	httpSrv := httptest.NewServer(manager)
	defer httpSrv.Close()

	resp, err := http.Get(httpSrv.URL + "/sse")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	eventType, data := readSSEEvent(t, reader)
	assert.Equal(t, "endpoint", eventType)
	assert.Contains(t, data, "/message?sessionId=")

	messageURL := httpSrv.URL + data

	initBody := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`
	postResp, err := http.Post(messageURL, "application/json", strings.NewReader(initBody))
	require.NoError(t, err)
	defer postResp.Body.Close()
	assert.Equal(t, http.StatusOK, postResp.StatusCode)

	_ = resp.Body // keep SSE connection referenced

	// The initialize response arrives asynchronously over the SSE stream.
	done := make(chan struct{})
	go func() {
		defer close(done)
		eventType, data := readSSEEvent(t, reader)
		assert.Equal(t, "message", eventType)
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(data), &decoded))
		assert.EqualValues(t, 1, decoded["id"])
		result := decoded["result"].(map[string]interface{})
		assert.Equal(t, "2024-11-05", result["protocolVersion"])
		serverInfo := result["serverInfo"].(map[string]interface{})
		assert.Equal(t, "custom-server", serverInfo["name"])
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initialize response over SSE")
	}
}

// TestToolsCallOverHTTPReturnsUpstreamResultAsynchronously drives a real
// tools/call end to end through the HTTP transport: POST /message returns
// before the upstream pipeline call completes, and the result arrives later
// over the SSE stream. This exercises the handler goroutine's context
// outliving the POST that spawned it, which a direct srv.HandleRequest(
// context.Background(), ...) call can't catch.
func TestToolsCallOverHTTPReturnsUpstreamResultAsynchronously(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"reply":"hi"}]`))
	}))
	defer upstream.Close()

	srv := server.New("custom-server", "0.0.1", server.WithPipeline(pipeline.New(pipeline.Config{URL: upstream.URL})))
	manager := NewManager(srv, Options{Logger: logging.Nop()})
	srv.AttachBroadcaster(manager)

	httpSrv := httptest.NewServer(manager)
	defer httpSrv.Close()

	reader, messageURL := openSSE(t, httpSrv.URL)

	initBody := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`
	postResp, err := http.Post(messageURL, "application/json", strings.NewReader(initBody))
	require.NoError(t, err)
	postResp.Body.Close()
	require.Equal(t, http.StatusOK, postResp.StatusCode)
	readSSEMessage(t, reader) // initialize response

	callBody := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"msg":"hi"}}}`
	postResp, err = http.Post(messageURL, "application/json", strings.NewReader(callBody))
	require.NoError(t, err)
	postResp.Body.Close()
	require.Equal(t, http.StatusOK, postResp.StatusCode)

	decoded := readSSEMessage(t, reader)
	assert.EqualValues(t, 2, decoded["id"])
	require.Nil(t, decoded["error"])
	result := decoded["result"].(map[string]interface{})
	content := result["content"].([]interface{})
	require.Len(t, content, 1)
	text := content[0].(map[string]interface{})
	assert.JSONEq(t, `{"reply":"hi"}`, text["text"].(string))
}

// TestRequestBeforeInitializeIsRejected verifies the lifecycle gate
// (spec.md §3): tools/call reaching a session that never completed the
// initialize handshake is answered with an error instead of being
// forwarded upstream.
func TestRequestBeforeInitializeIsRejected(t *testing.T) {
	srv := server.New("custom-server", "0.0.1")
	manager := NewManager(srv, Options{Logger: logging.Nop()})
	srv.AttachBroadcaster(manager)

	httpSrv := httptest.NewServer(manager)
	defer httpSrv.Close()

	reader, messageURL := openSSE(t, httpSrv.URL)

	callBody := `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"echo","arguments":{}}}`
	postResp, err := http.Post(messageURL, "application/json", strings.NewReader(callBody))
	require.NoError(t, err)
	postResp.Body.Close()
	require.Equal(t, http.StatusOK, postResp.StatusCode)

	decoded := readSSEMessage(t, reader)
	assert.EqualValues(t, 9, decoded["id"])
	require.Nil(t, decoded["result"])
	errObj := decoded["error"].(map[string]interface{})
	assert.EqualValues(t, protocol.CodeInvalidRequest, errObj["code"])
}

func TestPostToUnknownSessionReturns404(t *testing.T) {
	srv := server.New("custom-server", "0.0.1")
	manager := NewManager(srv, Options{Logger: logging.Nop()})

	httpSrv := httptest.NewServer(manager)
	defer httpSrv.Close()

	resp, err := http.Post(httpSrv.URL+"/message?sessionId=does-not-exist", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
