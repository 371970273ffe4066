package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"mcp-toolserver/pkg/errors"
)

// LoggingManager manages structured logging across the application. All
// loggers it hands out share one handler and one level.
type LoggingManager struct {
	handler slog.Handler
	level   *slog.LevelVar

	mutex         sync.RWMutex
	loggers       map[string]*StructuredLogger
	globalContext LogContext
	stats         LoggingStats
}

// LoggingStats tracks logging statistics
type LoggingStats struct {
	TotalMessages    int64            `json:"totalMessages"`
	MessagesByLevel  map[string]int64 `json:"messagesByLevel"`
	MessagesByLogger map[string]int64 `json:"messagesByLogger"`
	ErrorCount       int64            `json:"errorCount"`
	LastLogTime      time.Time        `json:"lastLogTime"`
}

// NewLoggingManager creates a manager writing JSON lines to stderr
func NewLoggingManager() *LoggingManager {
	return NewLoggingManagerWithWriter(os.Stderr)
}

// NewLoggingManagerWithWriter creates a manager writing to w
func NewLoggingManagerWithWriter(w io.Writer) *LoggingManager {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	return &LoggingManager{
		handler:       newHandler(w, level),
		level:         level,
		loggers:       make(map[string]*StructuredLogger),
		globalContext: make(LogContext),
		stats: LoggingStats{
			MessagesByLevel:  make(map[string]int64),
			MessagesByLogger: make(map[string]int64),
		},
	}
}

// GetLogger gets or creates a logger for a specific component
func (lm *LoggingManager) GetLogger(component string) *StructuredLogger {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if logger, exists := lm.loggers[component]; exists {
		return logger
	}

	logger := newStructuredLogger(component, lm.handler)
	for key, value := range lm.globalContext {
		logger = logger.WithContext(key, value)
	}
	lm.loggers[component] = logger
	return logger
}

// Slog exposes the shared handler for libraries that take a *slog.Logger
func (lm *LoggingManager) Slog(component string) *slog.Logger {
	return slog.New(lm.handler).With("component", component)
}

// ParseLevel maps a level name to a slog level. Unknown names map to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLogLevel sets the logging level for all loggers.
// Accepts any string and defaults to INFO for invalid levels.
func (lm *LoggingManager) SetLogLevel(level string) {
	lm.level.Set(ParseLevel(level))
}

// Level returns the current level
func (lm *LoggingManager) Level() slog.Level {
	return lm.level.Level()
}

// SetGlobalContext sets global context that will be added to all log entries
func (lm *LoggingManager) SetGlobalContext(key string, value any) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.globalContext[key] = value
	for component, logger := range lm.loggers {
		lm.loggers[component] = logger.WithContext(key, value)
	}
}

// LogError logs an error with full context
func (lm *LoggingManager) LogError(component string, err error, message string, context map[string]any) {
	lm.GetLogger(component).WithError(err).WithFields(context).Error(message)
	lm.updateStats(component, "ERROR")
}

// LogToolInvocation logs the outcome of a single tool dispatch
func (lm *LoggingManager) LogToolInvocation(tool, requestID string, duration time.Duration, success bool, errorMsg string) {
	logger := lm.GetLogger("dispatcher").
		WithContext("tool", tool).
		WithContext("request_id", requestID).
		WithContext("duration_ms", duration.Milliseconds()).
		WithContext("success", success)

	if success {
		logger.Info("Tool invocation completed")
		lm.updateStats("dispatcher", "INFO")
		return
	}
	logger.WithContext("error_message", errorMsg).Warn("Tool invocation failed")
	lm.updateStats("dispatcher", "WARN")
}

// LogResourceRead logs the outcome of a resource read
func (lm *LoggingManager) LogResourceRead(resource string, duration time.Duration, success bool, errorMsg string) {
	logger := lm.GetLogger("resources").
		WithContext("resource", resource).
		WithContext("duration_ms", duration.Milliseconds()).
		WithContext("success", success)

	if success {
		logger.Debug("Resource read completed")
		lm.updateStats("resources", "DEBUG")
		return
	}
	logger.WithContext("error_message", errorMsg).Warn("Resource read failed")
	lm.updateStats("resources", "WARN")
}

// LogTransportEvent logs connection and protocol level events
func (lm *LoggingManager) LogTransportEvent(transport, event string, details map[string]any) {
	lm.GetLogger("transport").
		WithContext("transport", transport).
		WithContext("transport_event", event).
		WithFields(details).
		Info("Transport event")
	lm.updateStats("transport", "INFO")
}

// LogCircuitBreakerStateChange logs circuit breaker state changes
func (lm *LoggingManager) LogCircuitBreakerStateChange(name string, from, to errors.BreakerState) {
	lm.GetLogger("circuit_breaker").
		WithContext("circuit_breaker", name).
		WithContext("old_state", from.String()).
		WithContext("new_state", to.String()).
		Warn("Circuit breaker state changed")
	lm.updateStats("circuit_breaker", "WARN")
}

// LogStartupSequence logs application startup sequence
func (lm *LoggingManager) LogStartupSequence(phase string, details map[string]any, duration time.Duration, success bool) {
	lm.logSequence("startup", phase, details, duration, success)
}

// LogShutdownSequence logs application shutdown sequence
func (lm *LoggingManager) LogShutdownSequence(phase string, details map[string]any, duration time.Duration, success bool) {
	lm.logSequence("shutdown", phase, details, duration, success)
}

func (lm *LoggingManager) logSequence(component, phase string, details map[string]any, duration time.Duration, success bool) {
	logger := lm.GetLogger(component).
		WithContext(component+"_event", phase).
		WithFields(details).
		WithContext("duration_ms", duration.Milliseconds()).
		WithContext("success", success)

	if success {
		logger.Info("Application " + component + " event")
		lm.updateStats(component, "INFO")
		return
	}
	logger.Error("Application " + component + " event failed")
	lm.updateStats(component, "ERROR")
}

func (lm *LoggingManager) updateStats(component, level string) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.stats.TotalMessages++
	lm.stats.MessagesByLevel[level]++
	lm.stats.MessagesByLogger[component]++
	lm.stats.LastLogTime = time.Now()
	if level == "ERROR" {
		lm.stats.ErrorCount++
	}
}

// GetStats returns current logging statistics
func (lm *LoggingManager) GetStats() LoggingStats {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	stats := LoggingStats{
		TotalMessages:    lm.stats.TotalMessages,
		ErrorCount:       lm.stats.ErrorCount,
		LastLogTime:      lm.stats.LastLogTime,
		MessagesByLevel:  make(map[string]int64, len(lm.stats.MessagesByLevel)),
		MessagesByLogger: make(map[string]int64, len(lm.stats.MessagesByLogger)),
	}
	for k, v := range lm.stats.MessagesByLevel {
		stats.MessagesByLevel[k] = v
	}
	for k, v := range lm.stats.MessagesByLogger {
		stats.MessagesByLogger[k] = v
	}
	return stats
}
