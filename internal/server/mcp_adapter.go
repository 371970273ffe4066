package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/errors"
	"mcp-toolserver/pkg/resources"
	"mcp-toolserver/pkg/tools"
)

// newMCPServer exposes the registries through the MCP SDK. The SDK owns the
// protocol; every tool call and resource read still goes through the
// dispatcher and resource registry. SDK diagnostics go to logger.
func newMCPServer(info models.ServerInfo, dispatcher *tools.Dispatcher, registry *resources.Registry, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: info.Name, Version: info.Version}, &mcp.ServerOptions{Logger: logger})

	for _, d := range dispatcher.Registry().List() {
		server.AddTool(mcpTool(d), toolHandler(dispatcher, d.Name))
	}

	read := resourceHandler(registry)
	for _, d := range registry.List() {
		server.AddResource(&mcp.Resource{
			URI:         d.URI,
			Name:        d.Name,
			MIMEType:    d.MimeType,
			Description: d.Description,
		}, read)
	}
	return server
}

// mcpTool converts a descriptor. The SDK requires an object schema, so
// tools without one advertise an open object.
func mcpTool(d models.ToolDescriptor) *mcp.Tool {
	schema := d.InputSchema
	if schema == nil || schema.Type != "object" {
		schema = &jsonschema.Schema{Type: "object"}
	}
	return &mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: schema,
	}
}

func toolHandler(dispatcher *tools.Dispatcher, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var arguments map[string]any
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &arguments); err != nil {
				return errorResult(errors.NewTransportError("invalid request", err).Message), nil
			}
		}

		result := dispatcher.Dispatch(ctx, name, arguments)
		if !result.OK() {
			return errorResult(result.Message), nil
		}

		text, err := payloadText(result.Payload)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

// payloadText renders strings as-is and everything else as JSON
func payloadText(payload any) (string, error) {
	if s, ok := payload.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
	}
}

func resourceHandler(registry *resources.Registry) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		d, ok := registry.LookupURI(uri)
		if !ok {
			return nil, mcp.ResourceNotFoundError(uri)
		}

		content, err := registry.Read(ctx, d.Name)
		if err != nil {
			return nil, callerError(err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      uri,
				MIMEType: d.MimeType,
				Text:     content,
			}},
		}, nil
	}
}

// messageError hides the structured error decoration from MCP clients
type messageError struct{ err error }

func (e messageError) Error() string { return errors.Message(e.err) }
func (e messageError) Unwrap() error { return e.err }

func callerError(err error) error {
	return messageError{err: err}
}
