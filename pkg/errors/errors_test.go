package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestStructuredError(t *testing.T) {
	t.Run("NewStructuredError creates error with correct fields", func(t *testing.T) {
		err := NewStructuredError(ErrorCategoryTool, ErrorSeverityHigh, "TEST_CODE", "Test message")

		if err.Category != ErrorCategoryTool {
			t.Errorf("Expected category %s, got %s", ErrorCategoryTool, err.Category)
		}
		if err.Code != "TEST_CODE" {
			t.Errorf("Expected code TEST_CODE, got %s", err.Code)
		}
		if !err.IsRecoverable() {
			t.Errorf("Expected non-critical error to be recoverable")
		}
	})

	t.Run("Critical errors are not recoverable", func(t *testing.T) {
		err := NewStructuredError(ErrorCategorySystem, ErrorSeverityCritical, "CRITICAL", "Critical error")
		if err.IsRecoverable() {
			t.Errorf("Expected critical error to not be recoverable")
		}
	})

	t.Run("Error method includes details when present", func(t *testing.T) {
		err := NewStructuredError(ErrorCategoryTransport, ErrorSeverityLow, "BAD", "bad line").
			WithDetails("line 3")
		expected := "bad line: line 3"
		if err.Error() != expected {
			t.Errorf("Expected error string '%s', got '%s'", expected, err.Error())
		}
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *StructuredError
		sentinel error
		message  string
	}{
		{"unknown tool", NewUnknownToolError("missing"), ErrUnknownTool, "Unknown tool: missing"},
		{"unknown resource", NewUnknownResourceError("nope"), ErrUnknownResource, "Unknown resource: nope"},
		{"duplicate tool", NewDuplicateToolError("echo"), ErrDuplicateTool, "tool echo already registered"},
		{"duplicate resource", NewDuplicateResourceError("status"), ErrDuplicateResource, "resource status already registered"},
		{"handler failure", NewHandlerExecutionError("boom", fmt.Errorf("kaboom")), ErrHandlerExecution, "kaboom"},
		{"handler panic", NewHandlerPanicError("boom", "oops"), ErrHandlerExecution, "panic: oops"},
		{"dependency", NewDependencyError("docker", nil), ErrDependencyMissing, "required dependency docker is not available"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Message != tt.message {
				t.Errorf("Expected message %q, got %q", tt.message, tt.err.Message)
			}
			if !stderrors.Is(tt.err, tt.sentinel) {
				t.Errorf("Expected errors.Is to match sentinel %v", tt.sentinel)
			}
			if env := tt.err.ToEnvelope(); env.Status != "error" || env.Error != tt.message {
				t.Errorf("Unexpected envelope %+v", env)
			}
		})
	}
}

func TestHandlerExecutionErrorKeepsCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewHandlerExecutionError("write", cause)

	if !stderrors.Is(err, cause) {
		t.Errorf("Expected original cause to remain reachable")
	}
}

func TestInvalidArgumentsMessage(t *testing.T) {
	err := NewInvalidArgumentsError("echo", fmt.Errorf("missing property \"text\""))
	if !strings.HasPrefix(err.Message, "invalid arguments for tool echo: ") {
		t.Errorf("Unexpected message %q", err.Message)
	}
	if !stderrors.Is(err, ErrInvalidArguments) {
		t.Errorf("Expected ErrInvalidArguments")
	}
}

func TestMessage(t *testing.T) {
	if got := Message(nil); got != "" {
		t.Errorf("Expected empty message for nil, got %q", got)
	}
	if got := Message(fmt.Errorf("plain")); got != "plain" {
		t.Errorf("Expected plain error text, got %q", got)
	}
	if got := Message(NewUnknownToolError("x")); got != "Unknown tool: x" {
		t.Errorf("Expected structured message, got %q", got)
	}
	wrapped := fmt.Errorf("lookup failed: %w", NewUnknownResourceError("motd"))
	if got := Message(wrapped); got != wrapped.Error() {
		t.Errorf("Expected %q, got %q", wrapped.Error(), got)
	}
}

func TestHandlerExecutionMessageIsErrorText(t *testing.T) {
	causes := []error{
		fmt.Errorf("plain"),
		NewUnknownToolError("x"),
		fmt.Errorf("wrapped: %w", NewStructuredError(ErrorCategorySystem, ErrorSeverityLow, "X", "inner").WithDetails("more")),
	}
	for _, cause := range causes {
		err := NewHandlerExecutionError("tool", cause)
		if err.Message != cause.Error() {
			t.Errorf("Expected message %q, got %q", cause.Error(), err.Message)
		}
	}
}
