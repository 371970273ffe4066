package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/errors"
)

// Handler executes a tool. Arguments are decoded JSON values; a missing
// argument object arrives as an empty map, never nil.
type Handler func(ctx context.Context, arguments map[string]any) (any, error)

// Tool pairs a descriptor with the handler that implements it
type Tool struct {
	Descriptor models.ToolDescriptor
	Handler    Handler
}

// NewTool creates a Tool with a hand-written schema. A nil schema disables
// argument validation for the tool.
func NewTool(name, description string, schema *jsonschema.Schema, handler Handler) Tool {
	return Tool{
		Descriptor: models.ToolDescriptor{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		Handler: handler,
	}
}

// NewTypedTool derives the input schema from In and decodes the argument
// map into In before calling fn. Fields without omitempty are required.
func NewTypedTool[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error)) (Tool, error) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return Tool{}, fmt.Errorf("derive schema for tool %s: %w", name, err)
	}

	handler := func(ctx context.Context, arguments map[string]any) (any, error) {
		in, err := decodeArguments[In](arguments)
		if err != nil {
			return nil, errors.NewInvalidArgumentsError(name, err)
		}
		return fn(ctx, in)
	}
	return NewTool(name, description, schema, handler), nil
}

// MustTypedTool is like NewTypedTool but panics if the schema cannot be derived.
// Intended for package-level tool construction.
func MustTypedTool[In, Out any](name, description string, fn func(ctx context.Context, in In) (Out, error)) Tool {
	tool, err := NewTypedTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return tool
}

func decodeArguments[In any](arguments map[string]any) (In, error) {
	var in In
	raw, err := json.Marshal(arguments)
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, err
	}
	return in, nil
}
