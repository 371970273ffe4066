package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"mcp-toolserver/pkg/errors"
)

func TestLoggingManager(t *testing.T) {
	t.Run("GetLogger creates and caches loggers", func(t *testing.T) {
		manager := NewLoggingManagerWithWriter(&bytes.Buffer{})
		if manager.GetLogger("test") != manager.GetLogger("test") {
			t.Error("Expected GetLogger to return cached logger")
		}
	})

	t.Run("SetLogLevel", func(t *testing.T) {
		manager := NewLoggingManagerWithWriter(&bytes.Buffer{})
		if manager.Level() != slog.LevelInfo {
			t.Error("Expected default log level to be INFO")
		}
		manager.SetLogLevel("debug")
		if manager.Level() != slog.LevelDebug {
			t.Error("Expected log level to be DEBUG")
		}
		manager.SetLogLevel("invalid")
		if manager.Level() != slog.LevelInfo {
			t.Error("Expected invalid log level to default to INFO")
		}
	})

	t.Run("level filters output of existing loggers", func(t *testing.T) {
		var buf bytes.Buffer
		manager := NewLoggingManagerWithWriter(&buf)
		logger := manager.GetLogger("test")

		manager.SetLogLevel("WARN")
		logger.Info("hidden")
		logger.Warn("shown")

		if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
			t.Errorf("Unexpected output %q", buf.String())
		}
	})

	t.Run("SetGlobalContext", func(t *testing.T) {
		manager := NewLoggingManagerWithWriter(&bytes.Buffer{})
		manager.GetLogger("existing")
		manager.SetGlobalContext("service", "toolserver")

		if manager.GetLogger("existing").context["service"] != "toolserver" {
			t.Error("Expected global context on existing loggers")
		}
		if manager.GetLogger("fresh").context["service"] != "toolserver" {
			t.Error("Expected global context on new loggers")
		}
	})

	t.Run("tool invocations are counted", func(t *testing.T) {
		var buf bytes.Buffer
		manager := NewLoggingManagerWithWriter(&buf)
		manager.LogToolInvocation("echo", "01H", time.Millisecond, true, "")
		manager.LogToolInvocation("boom", "01J", time.Millisecond, false, "kaboom")
		manager.LogError("dispatcher", fmt.Errorf("x"), "failed", map[string]any{"token": "t"})

		stats := manager.GetStats()
		if stats.TotalMessages != 3 || stats.ErrorCount != 1 {
			t.Errorf("Unexpected stats %+v", stats)
		}
		if stats.MessagesByLogger["dispatcher"] != 3 {
			t.Errorf("Expected 3 dispatcher messages, got %d", stats.MessagesByLogger["dispatcher"])
		}
		if strings.Contains(buf.String(), `"token":"t"`) {
			t.Error("Expected token to be redacted")
		}
	})

	t.Run("circuit breaker transitions are logged", func(t *testing.T) {
		var buf bytes.Buffer
		manager := NewLoggingManagerWithWriter(&buf)
		manager.LogCircuitBreakerStateChange("github", errors.BreakerClosed, errors.BreakerOpen)

		if !strings.Contains(buf.String(), `"new_state":"OPEN"`) {
			t.Errorf("Unexpected output %q", buf.String())
		}
	})
}
