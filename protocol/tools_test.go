package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCallToolResultRejectsEmpty(t *testing.T) {
	_, err := BuildCallToolResult(nil, false)
	require.Error(t, err)
}

func TestBuildCallToolResultAcceptsContent(t *testing.T) {
	result, err := BuildCallToolResult([]Content{NewTextContent(`{"reply":"hi"}`)}, false)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	out, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	_, hasIsError := decoded["isError"]
	assert.False(t, hasIsError, "isError must be omitted on success")

	content := decoded["content"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "text", content["type"])
	assert.Equal(t, `{"reply":"hi"}`, content["text"])
}
