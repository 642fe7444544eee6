// Package pipeline is the HTTP client for the upstream tool pipeline: the
// single external collaborator that actually enumerates and executes
// tools. The server's tools/list and tools/call handlers are thin adapters
// in front of this client (spec.md §4.4, §6).
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/slpipeline/mcpgateway/protocol"
)

// toolNameKey is the argument key the pipeline expects to be told which
// tool is being invoked, injected alongside the caller's own arguments.
const toolNameKey = "sl_tool_name"

// Config holds the static configuration for reaching the upstream
// pipeline: one POST endpoint, one bearer token.
type Config struct {
	URL         string
	BearerToken string
	Timeout     time.Duration
}

// Client calls the upstream pipeline over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client. The underlying http.Client follows redirects with
// the standard library's normal policy and enforces cfg.Timeout.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// paramDef is one entry of a pipeline tool's parameter list.
type paramDef struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Required bool   `mapstructure:"required"`
}

// toolDef is one tool as the pipeline describes it.
type toolDef struct {
	Name        string     `mapstructure:"name"`
	Description string     `mapstructure:"description"`
	Parameters  []paramDef `mapstructure:"parameters"`
}

// listEnvelope is the shape of pipeline_response[0] for a tools/list call.
type listEnvelope struct {
	Tools []toolDef `mapstructure:"tools"`
}

// ListTools POSTs params to the pipeline and converts its response into
// the Tool definitions the tools/list handler returns.
func (c *Client) ListTools(ctx context.Context, params json.RawMessage) ([]protocol.Tool, error) {
	body, err := c.post(ctx, params)
	if err != nil {
		return nil, err
	}

	var envelope []map[string]interface{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("upstream pipeline returned non-array response: %w", err)
	}
	if len(envelope) == 0 {
		return nil, nil
	}

	var first listEnvelope
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &first,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(envelope[0]); err != nil {
		return nil, fmt.Errorf("decode pipeline tool list: %w", err)
	}

	return convertToolDefs(first.Tools), nil
}

// CallTool injects sl_tool_name into arguments and POSTs to the pipeline,
// returning its first response element verbatim as JSON.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (json.RawMessage, error) {
	argMap := map[string]interface{}{}
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &argMap); err != nil {
			return nil, fmt.Errorf("tool arguments must be a JSON object: %w", err)
		}
	}
	argMap[toolNameKey] = name

	payload, err := json.Marshal(argMap)
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}

	var envelope []json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("upstream pipeline returned non-array response: %w", err)
	}
	if len(envelope) == 0 {
		return json.RawMessage("null"), nil
	}
	return envelope[0], nil
}

func (c *Client) post(ctx context.Context, payload json.RawMessage) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream pipeline request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading upstream pipeline response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream pipeline returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// convertToolDefs maps pipeline tool definitions into the JSON-Schema
// shaped Tool the wire protocol expects (spec.md §4.4): each parameter
// becomes a lowercase-typed property, required=true parameters are listed,
// additionalProperties is pinned false, and unrecognized types default to
// "string".
func convertToolDefs(defs []toolDef) []protocol.Tool {
	tools := make([]protocol.Tool, 0, len(defs))
	for _, d := range defs {
		schema := protocol.ToolInputSchema{
			Type:                 "object",
			Properties:           make(map[string]protocol.PropertyDetail, len(d.Parameters)),
			AdditionalProperties: false,
		}
		for _, p := range d.Parameters {
			schema.Properties[p.Name] = protocol.PropertyDetail{Type: jsonSchemaType(p.Type)}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		tools = append(tools, protocol.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: schema,
		})
	}
	return tools
}

// jsonSchemaType maps a pipeline parameter type (case-insensitive STRING,
// NUMBER, INTEGER, BOOLEAN, ARRAY, OBJECT) to its lowercase JSON-Schema
// type, defaulting unknown types to "string".
func jsonSchemaType(pipelineType string) string {
	switch strings.ToUpper(pipelineType) {
	case "STRING":
		return "string"
	case "NUMBER":
		return "number"
	case "INTEGER":
		return "integer"
	case "BOOLEAN":
		return "boolean"
	case "ARRAY":
		return "array"
	case "OBJECT":
		return "object"
	default:
		return "string"
	}
}
