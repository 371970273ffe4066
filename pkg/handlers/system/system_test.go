package system

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/handlers"
	"mcp-toolserver/pkg/logging"
	"mcp-toolserver/pkg/resources"
	"mcp-toolserver/pkg/tools"
)

func setup(t *testing.T) (*tools.Dispatcher, *resources.Registry) {
	t.Helper()
	set := New(models.ServerInfo{Name: "test-server", Version: "1.2.3"})

	tb, rb := tools.NewBuilder(), resources.NewBuilder()
	require.NoError(t, handlers.Register(tb, rb, set))

	d := tools.NewDispatcher(tb.Build(), logging.NewLoggingManagerWithWriter(io.Discard))
	reg := rb.Build()
	set.Bind(d, reg)
	return d, reg
}

func TestEcho(t *testing.T) {
	d, _ := setup(t)

	result := d.Dispatch(context.Background(), "echo", map[string]any{"text": "hi"})

	data, err := json.Marshal(result.Envelope())
	require.NoError(t, err)
	assert.Equal(t, `{"status":"success","result":"hi"}`, string(data))
}

func TestEchoRequiresText(t *testing.T) {
	d, _ := setup(t)

	result := d.Dispatch(context.Background(), "echo", map[string]any{})
	assert.False(t, result.OK())
}

func TestServerInfo(t *testing.T) {
	d, _ := setup(t)

	result := d.Dispatch(context.Background(), "server_info", nil)
	require.True(t, result.OK(), result.Message)

	info, ok := result.Payload.(Info)
	require.True(t, ok)
	assert.Equal(t, "test-server", info.Name)
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, 2, info.Tools)
	assert.Equal(t, 1, info.Resources)
	assert.NotEmpty(t, info.GoVersion)
}

func TestStatusResource(t *testing.T) {
	d, reg := setup(t)
	d.Dispatch(context.Background(), "echo", map[string]any{"text": "x"})

	content, err := reg.Read(context.Background(), "status")
	require.NoError(t, err)

	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(content), &st))
	assert.Equal(t, true, st["ok"])
	assert.Equal(t, "test-server", st["name"])
	dispatch := st["dispatch"].(map[string]any)
	assert.Equal(t, 1.0, dispatch["totalInvocations"])

	d2, ok := reg.Lookup("status")
	require.True(t, ok)
	assert.Equal(t, "toolserver://status", d2.URI)
}
