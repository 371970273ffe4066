package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetInput struct {
	Name  string `json:"name" jsonschema:"who to greet"`
	Times int    `json:"times,omitempty"`
}

func greet(_ context.Context, in greetInput) (string, error) {
	times := in.Times
	if times == 0 {
		times = 1
	}
	return strings.Repeat("hello "+in.Name+" ", times), nil
}

func TestNewTypedToolDerivesSchema(t *testing.T) {
	tool, err := NewTypedTool("greet", "Greets someone", greet)
	require.NoError(t, err)

	schema := tool.Descriptor.InputSchema
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema.Type)
	assert.Contains(t, schema.Properties, "name")
	assert.Contains(t, schema.Properties, "times")
	assert.Equal(t, []string{"name"}, schema.Required)
}

func TestTypedToolThroughDispatcher(t *testing.T) {
	d := newTestDispatcher(t, nil, MustTypedTool("greet", "Greets someone", greet))

	t.Run("decodes arguments", func(t *testing.T) {
		result := d.Dispatch(context.Background(), "greet", map[string]any{"name": "ada", "times": 2.0})
		require.True(t, result.OK(), result.Message)
		assert.Equal(t, "hello ada hello ada ", result.Payload)
	})

	t.Run("rejects missing field before decoding", func(t *testing.T) {
		result := d.Dispatch(context.Background(), "greet", map[string]any{})
		assert.False(t, result.OK())
		assert.True(t, strings.HasPrefix(result.Message, "invalid arguments for tool greet:"))
	})
}

func TestTypedToolDecodeFailureWithoutValidation(t *testing.T) {
	d := newTestDispatcher(t, []Option{WithValidation(false)}, MustTypedTool("greet", "", greet))

	result := d.Dispatch(context.Background(), "greet", map[string]any{"name": 42})

	assert.False(t, result.OK())
	assert.True(t, strings.HasPrefix(result.Message, "invalid arguments for tool greet:"), result.Message)
}
