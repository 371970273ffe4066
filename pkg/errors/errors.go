package errors

import (
	stderrors "errors"
	"fmt"
	"time"

	"mcp-toolserver/internal/models"
)

// ErrorCategory represents different types of errors in the system
type ErrorCategory string

const (
	// Tool lookup and registration errors
	ErrorCategoryTool ErrorCategory = "tool"
	// Resource lookup and registration errors
	ErrorCategoryResource ErrorCategory = "resource"
	// Errors raised inside a handler or provider
	ErrorCategoryHandler ErrorCategory = "handler"
	// Argument and descriptor validation errors
	ErrorCategoryValidation ErrorCategory = "validation"
	// Malformed requests on the wire
	ErrorCategoryTransport ErrorCategory = "transport"
	// System/internal errors
	ErrorCategorySystem ErrorCategory = "system"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	ErrorSeverityLow      ErrorSeverity = "low"
	ErrorSeverityMedium   ErrorSeverity = "medium"
	ErrorSeverityHigh     ErrorSeverity = "high"
	ErrorSeverityCritical ErrorSeverity = "critical"
)

// Sentinel errors, reachable through errors.Is on any StructuredError built
// by the constructors below.
var (
	ErrUnknownTool         = stderrors.New("unknown tool")
	ErrUnknownResource     = stderrors.New("unknown resource")
	ErrDuplicateTool       = stderrors.New("duplicate tool")
	ErrDuplicateResource   = stderrors.New("duplicate resource")
	ErrHandlerExecution    = stderrors.New("handler execution failed")
	ErrInvalidArguments    = stderrors.New("invalid arguments")
	ErrTransport           = stderrors.New("malformed request")
	ErrDependencyMissing   = stderrors.New("required dependency missing")
	ErrCircuitOpen         = stderrors.New("circuit breaker open")
	ErrInvalidRegistration = stderrors.New("invalid registration")
)

// StructuredError represents a structured error with additional context
type StructuredError struct {
	Category    ErrorCategory  `json:"category"`
	Severity    ErrorSeverity  `json:"severity"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Details     string         `json:"details,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Recoverable bool           `json:"recoverable"`
	Cause       error          `json:"-"`
}

// Error implements the error interface. Category and code are left out so
// the text can be shown to callers as is; loggers record them as fields.
func (se *StructuredError) Error() string {
	if se.Details != "" {
		return se.Message + ": " + se.Details
	}
	return se.Message
}

// Unwrap returns the underlying cause
func (se *StructuredError) Unwrap() error {
	return se.Cause
}

// ToEnvelope converts the error into the caller-facing error envelope.
// Only the message crosses the boundary.
func (se *StructuredError) ToEnvelope() models.ErrorEnvelope {
	return models.NewErrorEnvelope(se.Message)
}

// NewStructuredError creates a new structured error
func NewStructuredError(category ErrorCategory, severity ErrorSeverity, code, message string) *StructuredError {
	return &StructuredError{
		Category:    category,
		Severity:    severity,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		Recoverable: severity != ErrorSeverityCritical,
		Context:     make(map[string]any),
	}
}

// WithDetails adds details to the error
func (se *StructuredError) WithDetails(details string) *StructuredError {
	se.Details = details
	return se
}

// WithContext adds context information to the error
func (se *StructuredError) WithContext(key string, value any) *StructuredError {
	if se.Context == nil {
		se.Context = make(map[string]any)
	}
	se.Context[key] = value
	return se
}

// WithCause sets the underlying cause error
func (se *StructuredError) WithCause(err error) *StructuredError {
	se.Cause = err
	return se
}

// IsRecoverable returns whether the error is recoverable
func (se *StructuredError) IsRecoverable() bool {
	return se.Recoverable
}

// Message returns the text shown to callers for err: its Error() text, or ""
// for nil.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// joined chains a sentinel in front of an optional original cause so both
// remain visible to errors.Is.
func joined(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return stderrors.Join(sentinel, cause)
}

// NewUnknownToolError reports a dispatch to a name that is not registered
func NewUnknownToolError(name string) *StructuredError {
	return NewStructuredError(ErrorCategoryTool, ErrorSeverityLow, ErrCodeUnknownTool,
		"Unknown tool: "+name).
		WithCause(ErrUnknownTool).
		WithContext("tool", name)
}

// NewUnknownResourceError reports a read of a name that is not registered
func NewUnknownResourceError(name string) *StructuredError {
	return NewStructuredError(ErrorCategoryResource, ErrorSeverityLow, ErrCodeUnknownResource,
		"Unknown resource: "+name).
		WithCause(ErrUnknownResource).
		WithContext("resource", name)
}

// NewDuplicateToolError reports a second registration under the same name
func NewDuplicateToolError(name string) *StructuredError {
	return NewStructuredError(ErrorCategoryTool, ErrorSeverityHigh, ErrCodeDuplicateTool,
		fmt.Sprintf("tool %s already registered", name)).
		WithCause(ErrDuplicateTool).
		WithContext("tool", name)
}

// NewDuplicateResourceError reports a second registration under the same name or URI
func NewDuplicateResourceError(name string) *StructuredError {
	return NewStructuredError(ErrorCategoryResource, ErrorSeverityHigh, ErrCodeDuplicateResource,
		fmt.Sprintf("resource %s already registered", name)).
		WithCause(ErrDuplicateResource).
		WithContext("resource", name)
}

// NewRegistrationError reports an unusable descriptor or handler
func NewRegistrationError(message string, err error) *StructuredError {
	return NewStructuredError(ErrorCategoryValidation, ErrorSeverityHigh, ErrCodeInvalidRegistration, message).
		WithCause(joined(ErrInvalidRegistration, err))
}

// NewHandlerExecutionError wraps an error returned by a handler. The caller
// facing message is the handler's own error text.
func NewHandlerExecutionError(name string, err error) *StructuredError {
	return NewStructuredError(ErrorCategoryHandler, ErrorSeverityMedium, ErrCodeHandlerExecution,
		Message(err)).
		WithCause(joined(ErrHandlerExecution, err)).
		WithContext("tool", name)
}

// NewHandlerPanicError converts a recovered panic value
func NewHandlerPanicError(name string, recovered any) *StructuredError {
	return NewStructuredError(ErrorCategoryHandler, ErrorSeverityHigh, ErrCodeHandlerPanic,
		fmt.Sprintf("panic: %v", recovered)).
		WithCause(ErrHandlerExecution).
		WithContext("tool", name)
}

// NewInvalidArgumentsError reports arguments rejected by a tool's schema or decoder
func NewInvalidArgumentsError(name string, err error) *StructuredError {
	message := fmt.Sprintf("invalid arguments for tool %s", name)
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	return NewStructuredError(ErrorCategoryValidation, ErrorSeverityLow, ErrCodeInvalidArguments, message).
		WithCause(joined(ErrInvalidArguments, err)).
		WithContext("tool", name)
}

// NewTransportError reports a request line that could not be understood
func NewTransportError(message string, err error) *StructuredError {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	return NewStructuredError(ErrorCategoryTransport, ErrorSeverityLow, ErrCodeMalformedRequest, message).
		WithCause(joined(ErrTransport, err))
}

// NewDependencyError reports an external dependency that is unavailable at startup
func NewDependencyError(dependency string, err error) *StructuredError {
	return NewStructuredError(ErrorCategorySystem, ErrorSeverityCritical, ErrCodeDependencyMissing,
		fmt.Sprintf("required dependency %s is not available", dependency)).
		WithCause(joined(ErrDependencyMissing, err)).
		WithContext("dependency", dependency)
}

// NewSystemError creates a system/internal error
func NewSystemError(code, message string, err error) *StructuredError {
	return NewStructuredError(ErrorCategorySystem, ErrorSeverityCritical, code, message).WithCause(err)
}

// Common error codes
const (
	ErrCodeUnknownTool          = "UNKNOWN_TOOL"
	ErrCodeUnknownResource      = "UNKNOWN_RESOURCE"
	ErrCodeDuplicateTool        = "DUPLICATE_TOOL"
	ErrCodeDuplicateResource    = "DUPLICATE_RESOURCE"
	ErrCodeInvalidRegistration  = "INVALID_REGISTRATION"
	ErrCodeHandlerExecution     = "HANDLER_EXECUTION_FAILED"
	ErrCodeHandlerPanic         = "HANDLER_PANIC"
	ErrCodeInvalidArguments     = "INVALID_ARGUMENTS"
	ErrCodeMalformedRequest     = "MALFORMED_REQUEST"
	ErrCodeDependencyMissing    = "DEPENDENCY_MISSING"
	ErrCodeCircuitOpen          = "CIRCUIT_BREAKER_OPEN"
	ErrCodeInitializationFailed = "INITIALIZATION_FAILED"
	ErrCodeShutdownFailed       = "SHUTDOWN_FAILED"
)
