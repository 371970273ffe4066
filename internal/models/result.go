package models

// ToolResult is the outcome of a single dispatch: either a success carrying
// the handler payload or a failure carrying a caller-facing message.
type ToolResult struct {
	Status  string
	Payload any
	Message string

	// Err keeps the original error for server-side logging. It never
	// crosses the transport boundary.
	Err error
}

// Success creates a successful result
func Success(payload any) ToolResult {
	return ToolResult{Status: StatusSuccess, Payload: payload}
}

// Failure creates a failed result
func Failure(message string, err error) ToolResult {
	return ToolResult{Status: StatusError, Message: message, Err: err}
}

// OK reports whether the dispatch succeeded
func (r ToolResult) OK() bool {
	return r.Status == StatusSuccess
}

// Envelope converts the result into its wire representation
func (r ToolResult) Envelope() any {
	if r.OK() {
		return NewSuccessEnvelope(r.Payload)
	}
	return NewErrorEnvelope(r.Message)
}
