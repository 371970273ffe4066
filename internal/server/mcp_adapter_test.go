package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/config"
	"mcp-toolserver/pkg/handlers"
)

func callTool(t *testing.T, s *Server, name, arguments string) *mcp.CallToolResult {
	t.Helper()
	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Name: name, Arguments: json.RawMessage(arguments)}}
	result, err := toolHandler(s.dispatcher, name)(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	content, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestMCPToolHandler(t *testing.T) {
	s := newTestServer(t, testConfig("system"), Options{ExtraSets: []handlers.Set{fixtures()}})

	t.Run("string payload is returned as text", func(t *testing.T) {
		result := callTool(t, s, "echo", `{"text":"hi"}`)
		assert.False(t, result.IsError)
		assert.Equal(t, "hi", text(t, result))
	})

	t.Run("structured payload is returned as JSON", func(t *testing.T) {
		result := callTool(t, s, "server_info", `{}`)
		assert.False(t, result.IsError)
		assert.Contains(t, text(t, result), `"name":"test-server"`)
	})

	t.Run("handler error sets IsError", func(t *testing.T) {
		result := callTool(t, s, "boom", ``)
		assert.True(t, result.IsError)
		assert.Equal(t, "bad input", text(t, result))
	})

	t.Run("schema violation sets IsError", func(t *testing.T) {
		result := callTool(t, s, "echo", `{"text":3}`)
		assert.True(t, result.IsError)
		assert.True(t, strings.HasPrefix(text(t, result), "invalid arguments for tool echo:"))
	})

	t.Run("undecodable arguments", func(t *testing.T) {
		result := callTool(t, s, "echo", `[1,2]`)
		assert.True(t, result.IsError)
		assert.True(t, strings.HasPrefix(text(t, result), "invalid request: "))
	})
}

func TestMCPResourceHandler(t *testing.T) {
	s := newTestServer(t, testConfig("system"), Options{ExtraSets: []handlers.Set{fixtures()}})
	read := resourceHandler(s.resources)

	result, err := read(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: "toolserver://config"},
	})
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, `{"ok":true}`, result.Contents[0].Text)
	assert.Equal(t, config.MimeTypeJSON, result.Contents[0].MIMEType)

	_, err = read(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: "toolserver://missing"},
	})
	assert.Error(t, err)
}

func TestMCPToolSchema(t *testing.T) {
	open := mcpTool(models.ToolDescriptor{Name: "free"})
	assert.Equal(t, &jsonschema.Schema{Type: "object"}, open.InputSchema)

	scalar := mcpTool(models.ToolDescriptor{Name: "scalar", InputSchema: &jsonschema.Schema{Type: "string"}})
	assert.Equal(t, &jsonschema.Schema{Type: "object"}, scalar.InputSchema)

	typed := &jsonschema.Schema{Type: "object", Required: []string{"text"}}
	assert.Same(t, typed, mcpTool(models.ToolDescriptor{Name: "typed", InputSchema: typed}).InputSchema)
}

func TestMCPTransportEndToEnd(t *testing.T) {
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	cfg := testConfig("system")
	cfg.Server.Transport = config.TransportMCP
	s := newTestServer(t, cfg, Options{MCPTransport: serverTransport, ExtraSets: []handlers.Set{fixtures()}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	listed, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"echo", "server_info", "boom"}, names)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "hi", text(t, result))

	read, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "toolserver://config"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, read.Contents[0].Text)

	require.NoError(t, session.Close())
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("mcp transport did not stop")
	}
}
