package tools

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mcp-toolserver/internal/models"
	"mcp-toolserver/pkg/errors"
	"mcp-toolserver/pkg/logging"
	"mcp-toolserver/pkg/metrics"
)

// Dispatcher looks up a tool, validates its arguments, invokes the handler
// and normalizes the outcome. It is the single place where handler errors
// and panics are turned into failure results.
type Dispatcher struct {
	registry *Registry
	logging  *logging.LoggingManager
	logger   *logging.StructuredLogger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	validate bool

	mu    sync.Mutex
	stats DispatchStats
}

// DispatchStats tracks tool invocations since startup
type DispatchStats struct {
	TotalInvocations     int64            `json:"totalInvocations"`
	FailedInvocations    int64            `json:"failedInvocations"`
	UnknownToolCount     int64            `json:"unknownToolCount"`
	PanicCount           int64            `json:"panicCount"`
	InvocationsByName    map[string]int64 `json:"invocationsByName"`
	TotalExecutionTimeMs int64            `json:"totalExecutionTimeMs"`
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithValidation toggles schema validation of arguments. Enabled by default.
func WithValidation(enabled bool) Option {
	return func(d *Dispatcher) { d.validate = enabled }
}

// WithMetrics records every dispatch on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer wraps every dispatch in a span from tracer
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// NewDispatcher creates a dispatcher over a built registry
func NewDispatcher(registry *Registry, lm *logging.LoggingManager, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logging:  lm,
		logger:   lm.GetLogger("dispatcher"),
		tracer:   noop.NewTracerProvider().Tracer(""),
		validate: true,
		stats: DispatchStats{
			InvocationsByName: make(map[string]int64),
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.metrics.SetRegisteredTools(registry.Len())
	return d
}

// Registry returns the registry the dispatcher serves
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs the named tool. It never returns an error and never panics:
// every failure is reported through the result.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, arguments map[string]any) models.ToolResult {
	start := time.Now()
	requestID := ulid.Make().String()

	ctx, span := d.tracer.Start(ctx, "tools/"+name, trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.request_id", requestID),
	))
	defer span.End()

	if arguments == nil {
		arguments = map[string]any{}
	}

	e, ok := d.registry.lookupEntry(name)
	if !ok {
		se := errors.NewUnknownToolError(name)
		result := models.Failure(se.Message, se)
		d.finish(span, name, requestID, false, result, start)
		return result
	}

	d.logger.
		WithContext("tool", name).
		WithContext("request_id", requestID).
		WithFields(map[string]any{"arguments": arguments}).
		Debug("Executing tool")

	if d.validate && e.resolved != nil {
		if err := e.resolved.Validate(arguments); err != nil {
			se := errors.NewInvalidArgumentsError(name, err)
			result := models.Failure(se.Message, se)
			d.finish(span, name, requestID, true, result, start)
			return result
		}
	}

	result := d.invoke(ctx, name, e.tool.Handler, arguments)
	d.finish(span, name, requestID, true, result, start)
	return result
}

// invoke calls the handler exactly once and recovers a panic into a failure
func (d *Dispatcher) invoke(ctx context.Context, name string, handler Handler, arguments map[string]any) (result models.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			se := errors.NewHandlerPanicError(name, r).WithContext("stack", string(debug.Stack()))
			d.mu.Lock()
			d.stats.PanicCount++
			d.mu.Unlock()
			result = models.Failure(se.Message, se)
		}
	}()

	payload, err := handler(ctx, arguments)
	if err != nil {
		se := errors.NewHandlerExecutionError(name, err)
		return models.Failure(se.Message, se)
	}
	return models.Success(payload)
}

func (d *Dispatcher) finish(span trace.Span, name, requestID string, known bool, result models.ToolResult, start time.Time) {
	elapsed := time.Since(start)

	d.mu.Lock()
	d.stats.TotalInvocations++
	if known {
		d.stats.InvocationsByName[name]++
		d.stats.TotalExecutionTimeMs += elapsed.Milliseconds()
	} else {
		d.stats.UnknownToolCount++
	}
	if !result.OK() {
		d.stats.FailedInvocations++
	}
	d.mu.Unlock()

	d.metrics.ObserveTool(name, known, result.Status, elapsed)

	span.SetAttributes(attribute.String("tool.status", result.Status))
	if !result.OK() {
		span.SetStatus(codes.Error, result.Message)
		if result.Err != nil {
			span.RecordError(result.Err)
			logger := d.logger.WithContext("tool", name).
				WithContext("request_id", requestID).
				WithError(result.Err)
			var se *errors.StructuredError
			if stderrors.As(result.Err, &se) && se.Code == errors.ErrCodeHandlerPanic {
				logger.Error("Tool handler panicked")
			} else {
				logger.Warn("Tool failure cause")
			}
		}
	}

	d.logging.LogToolInvocation(name, requestID, elapsed, result.OK(), result.Message)
}

// Stats returns a snapshot of the dispatch counters
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := d.stats
	snapshot.InvocationsByName = make(map[string]int64, len(d.stats.InvocationsByName))
	for k, v := range d.stats.InvocationsByName {
		snapshot.InvocationsByName[k] = v
	}
	return snapshot
}

// String implements fmt.Stringer for debugging output
func (s DispatchStats) String() string {
	return fmt.Sprintf("total=%d failed=%d unknown=%d panics=%d",
		s.TotalInvocations, s.FailedInvocations, s.UnknownToolCount, s.PanicCount)
}
