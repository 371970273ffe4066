package models

import "encoding/json"

// Envelope status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// List targets accepted by the discovery request
const (
	ListTools     = "tools"
	ListResources = "resources"
)

// Request is a single line of the envelope protocol. Exactly one of Tool,
// Resource or List is expected to be set.
type Request struct {
	Tool      *string        `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Resource  *string        `json:"resource,omitempty"`
	List      *string        `json:"list,omitempty"`
}

// ToolRequest builds a tool invocation request
func ToolRequest(name string, arguments map[string]any) Request {
	return Request{Tool: &name, Arguments: arguments}
}

// ResourceRequest builds a resource read request
func ResourceRequest(name string) Request {
	return Request{Resource: &name}
}

// SuccessEnvelope is returned for a tool that completed normally.
// Result is always serialized, even when the handler returned nil.
type SuccessEnvelope struct {
	Status string `json:"status"`
	Result any    `json:"result"`
}

// ErrorEnvelope is returned for every failed tool call or resource read
type ErrorEnvelope struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// ContentEnvelope is returned for a successful resource read
type ContentEnvelope struct {
	Content string `json:"content"`
}

// NewSuccessEnvelope wraps a handler payload
func NewSuccessEnvelope(result any) SuccessEnvelope {
	return SuccessEnvelope{Status: StatusSuccess, Result: result}
}

// NewErrorEnvelope wraps a failure message
func NewErrorEnvelope(message string) ErrorEnvelope {
	return ErrorEnvelope{Status: StatusError, Error: message}
}

// NewContentEnvelope wraps resource content verbatim
func NewContentEnvelope(content string) ContentEnvelope {
	return ContentEnvelope{Content: content}
}

// Response is a decoded envelope as seen by a client. It accepts all three
// response shapes.
type Response struct {
	Status  string          `json:"status,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Content *string         `json:"content,omitempty"`
}

// IsError reports whether the response carries a failure
func (r Response) IsError() bool {
	return r.Status == StatusError
}
