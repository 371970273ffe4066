package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"mcp-toolserver/pkg/errors"
)

// LogContext represents contextual information for log entries
type LogContext map[string]any

// StructuredLogger provides structured logging capabilities. Output always
// goes to a writer other than stdout, which belongs to the envelope protocol.
type StructuredLogger struct {
	logger    *slog.Logger
	component string
	context   LogContext
}

// newHandler builds the JSON handler shared by every logger of a manager
func newHandler(w io.Writer, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				return slog.String("timestamp", a.Value.Time().UTC().Format(time.RFC3339Nano))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: a.Value}
			}
			return a
		},
	}
	return slog.NewJSONHandler(w, opts)
}

// NewStructuredLogger creates a standalone logger writing to stderr
func NewStructuredLogger(component string) *StructuredLogger {
	return newStructuredLogger(component, newHandler(os.Stderr, slog.LevelInfo))
}

func newStructuredLogger(component string, handler slog.Handler) *StructuredLogger {
	return &StructuredLogger{
		logger:    slog.New(handler),
		component: component,
		context:   make(LogContext),
	}
}

// Component returns the component name attached to every entry
func (sl *StructuredLogger) Component() string {
	return sl.component
}

// WithContext adds context to the logger (returns a new logger instance)
func (sl *StructuredLogger) WithContext(key string, value any) *StructuredLogger {
	next := &StructuredLogger{
		logger:    sl.logger,
		component: sl.component,
		context:   make(LogContext, len(sl.context)+1),
	}
	for k, v := range sl.context {
		next.context[k] = v
	}
	next.context[key] = value
	return next
}

// WithFields adds several sanitized context values at once
func (sl *StructuredLogger) WithFields(fields map[string]any) *StructuredLogger {
	next := sl
	for k, v := range SanitizeFields(fields) {
		next = next.WithContext(k, v)
	}
	return next
}

// WithError adds error information to the logger context
func (sl *StructuredLogger) WithError(err error) *StructuredLogger {
	if err == nil {
		return sl
	}

	next := sl.WithContext("error", err.Error())
	if se, ok := err.(*errors.StructuredError); ok {
		next = next.
			WithContext("error_category", se.Category).
			WithContext("error_code", se.Code).
			WithContext("error_severity", se.Severity)
		for k, v := range se.Context {
			next = next.WithContext(fmt.Sprintf("error_ctx_%s", k), v)
		}
	}
	return next
}

func (sl *StructuredLogger) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(sl.context)+1)
	attrs = append(attrs, slog.String("component", sl.component))
	for key, value := range sl.context {
		attrs = append(attrs, slog.Any(key, value))
	}
	return attrs
}

func (sl *StructuredLogger) log(level slog.Level, message string) {
	ctx := context.Background()
	if !sl.logger.Enabled(ctx, level) {
		return
	}
	sl.logger.LogAttrs(ctx, level, message, sl.attrs()...)
}

// Debug logs a debug message
func (sl *StructuredLogger) Debug(message string) { sl.log(slog.LevelDebug, message) }

// Info logs an info message
func (sl *StructuredLogger) Info(message string) { sl.log(slog.LevelInfo, message) }

// Warn logs a warning message
func (sl *StructuredLogger) Warn(message string) { sl.log(slog.LevelWarn, message) }

// Error logs an error message
func (sl *StructuredLogger) Error(message string) { sl.log(slog.LevelError, message) }

var sensitiveKeys = []string{
	"password", "token", "secret", "key", "auth", "credential", "private",
}

// maxLoggedValue bounds string values copied into log entries
const maxLoggedValue = 100

// SanitizeFields masks values whose key looks sensitive and truncates long
// strings. Nested maps are sanitized recursively. The input is not modified.
func SanitizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	sanitized := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(k) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		switch value := v.(type) {
		case string:
			if len(value) > maxLoggedValue {
				sanitized[k] = value[:maxLoggedValue] + "..."
			} else {
				sanitized[k] = value
			}
		case map[string]any:
			sanitized[k] = SanitizeFields(value)
		default:
			sanitized[k] = v
		}
	}
	return sanitized
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
