package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}`))
	require.NoError(t, err)
	assert.Equal(t, KindRequest, msg.Kind)
	assert.Equal(t, "ping", msg.Req.Method)
}

func TestDecodeNotification(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.Equal(t, KindNotification, msg.Kind)
	assert.Equal(t, "notifications/initialized", msg.Notif.Method)
}

func TestDecodeResponseSuccess(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":"srv-1","result":{}}`))
	require.NoError(t, err)
	assert.Equal(t, KindResponse, msg.Kind)
	assert.Nil(t, msg.Resp.Error)
}

func TestDecodeResponseBothResultAndErrorRejected(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":-32603,"message":"x"}}`))
	require.Error(t, err)
	var malformed *MalformedMessage
	assert.ErrorAs(t, err, &malformed)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"jsonrpc":"2.0"}`))
	require.Error(t, err)
}

func TestEncodeOmitsAbsentFields(t *testing.T) {
	resp := NewSuccessResponse(1, map[string]string{"ok": "true"})
	out, err := Encode(&Message{Kind: KindResponse, Resp: resp})
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &decoded))
	_, hasError := decoded["error"]
	assert.False(t, hasError, "encode must omit the error field when absent, never emit null")
}

func TestRoundTrip(t *testing.T) {
	original := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo","arguments":{"msg":"hi"}}}`)
	msg, err := Decode(original)
	require.NoError(t, err)
	out, err := Encode(msg)
	require.NoError(t, err)

	var a, b map[string]interface{}
	require.NoError(t, json.Unmarshal(original, &a))
	require.NoError(t, json.Unmarshal(out, &b))
	assert.Equal(t, a, b)
}
