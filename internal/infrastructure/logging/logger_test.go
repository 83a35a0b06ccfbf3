package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/tem-emulator/internal/infrastructure/config"
)

func TestNew_StdoutAndStderr(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", ""} {
		logger, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: output}, "1.0.0")
		if err != nil {
			t.Fatalf("New(output=%q) error = %v", output, err)
		}
		if logger == nil {
			t.Fatalf("New(output=%q) returned nil logger", output)
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() error = %v, want nil for %q", err, output)
		}
	}
}

func TestNew_FileOutputDatedName(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "file",
		File:   config.FileLoggingConfig{Dir: filepath.Join(dir, "logs")},
	}

	logger, err := New(cfg, "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("written to file", "device", "camera")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	path := filepath.Join(dir, "logs", LogFileName(time.Now()))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file = %q, want it to contain message", data)
	}
}

func TestNew_FileOutputExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.log")
	logger, err := New(config.LoggingConfig{Output: "file", File: config.FileLoggingConfig{Path: path}}, "1.0.0")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected log file at %s: %v", path, err)
	}
}

func TestLogFileName(t *testing.T) {
	got := LogFileName(time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC))
	if got != "emulator_2026-03-07.log" {
		t.Errorf("LogFileName() = %q, want %q", got, "emulator_2026-03-07.log")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{name: "debug level", input: "debug", expected: slog.LevelDebug},
		{name: "info level", input: "info", expected: slog.LevelInfo},
		{name: "warn level", input: "warn", expected: slog.LevelWarn},
		{name: "warning level", input: "warning", expected: slog.LevelWarn},
		{name: "error level", input: "error", expected: slog.LevelError},
		{name: "unknown defaults to info", input: "unknown", expected: slog.LevelInfo},
		{name: "empty defaults to info", input: "", expected: slog.LevelInfo},
		{name: "case insensitive", input: "DEBUG", expected: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "1.0.0")
	childLogger := logger.With("component", "worker")

	if childLogger == logger {
		t.Error("expected child logger to be different from parent")
	}

	childLogger.Info("ready")
	if !strings.Contains(buf.String(), `"component":"worker"`) {
		t.Errorf("output = %q, want component attribute", buf.String())
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
}

func TestLogger_OutputContainsDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test")
	logger.Info("test message", "key", "value")

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if logEntry["service"] != serviceName {
		t.Errorf("service = %v, want %q", logEntry["service"], serviceName)
	}
	if logEntry["version"] != "test" {
		t.Errorf("version = %v, want %q", logEntry["version"], "test")
	}
	if logEntry["msg"] != "test message" {
		t.Errorf("expected msg='test message', got %v", logEntry["msg"])
	}
	if logEntry["key"] != "value" {
		t.Errorf("expected key='value', got %v", logEntry["key"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "text"}, "test")
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn entry should be written at warn level")
	}
}
