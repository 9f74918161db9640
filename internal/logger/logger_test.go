package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ratekeeper/internal/models"
	"ratekeeper/internal/version"
)

var testVersion = version.Info{
	Version:    "v1.2.3",
	GitCommit:  "abc123",
	BuildDate:  "2026-01-01T00:00:00Z",
	InstanceID: "instance-1",
	Hostname:   "test-host",
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  slog.Level
		expectErr bool
	}{
		{name: "debug", input: "debug", expected: slog.LevelDebug},
		{name: "info", input: "info", expected: slog.LevelInfo},
		{name: "warn", input: "warn", expected: slog.LevelWarn},
		{name: "error", input: "error", expected: slog.LevelError},
		{name: "uppercase", input: "DEBUG", expected: slog.LevelDebug},
		{name: "invalid", input: "verbose", expectErr: true},
		{name: "empty", input: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Errorf("expected error for input %q, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for input %q: %v", tt.input, err)
			}
			if level != tt.expected {
				t.Errorf("expected level %v, got %v", tt.expected, level)
			}
		})
	}
}

func TestNewJSONCarriesIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json", slog.LevelInfo, testVersion)

	logger.Info("Rate limit exceeded", "key", "10.0.0.1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	for field, want := range map[string]string{
		"msg":         "Rate limit exceeded",
		"key":         "10.0.0.1",
		"version":     "v1.2.3",
		"git_commit":  "abc123",
		"instance_id": "instance-1",
	} {
		if record[field] != want {
			t.Errorf("field %s: expected %q, got %v", field, want, record[field])
		}
	}
	if _, ok := record["source"]; ok {
		t.Error("source should only be added at debug level")
	}
}

func TestNewTextDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "text", slog.LevelDebug, testVersion)

	logger.Debug("Rate limit checked")

	out := buf.String()
	if !strings.Contains(out, "msg=\"Rate limit checked\"") {
		t.Errorf("expected text record, got %q", out)
	}
	if !strings.Contains(out, "source=") {
		t.Errorf("expected source attribute at debug level, got %q", out)
	}
}

func TestNewLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "text", slog.LevelWarn, testVersion)

	logger.Info("should not appear")
	logger.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Error("info message should have been filtered by warn level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("warn message should have appeared")
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(&buf, "text", slog.LevelInfo, testVersion), "allowlist")

	logger.Info("Allow-list loaded")

	if !strings.Contains(buf.String(), "component=allowlist") {
		t.Errorf("expected component attribute, got %q", buf.String())
	}
}

func TestSetupStdStreams(t *testing.T) {
	for _, output := range []string{"stdout", "stderr"} {
		t.Run(output, func(t *testing.T) {
			cfg := models.LoggingConfig{Level: "info", Format: "json", Output: output}

			logger, closer, err := Setup(cfg, testVersion)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if closer != nil {
				t.Errorf("expected nil closer for %s", output)
			}
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestSetupFileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "ratekeeper.log")

	cfg := models.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: logFile,
	}

	logger, closer, err := Setup(cfg, testVersion)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closer == nil {
		t.Fatal("expected non-nil closer for file output")
	}
	defer closer.Close()

	logger.Info("test message", "key", "value")

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "test message") || !strings.Contains(content, "instance-1") {
		t.Errorf("log file does not contain expected record, got: %s", content)
	}
}

func TestSetupErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.LoggingConfig
	}{
		{"file output without path", models.LoggingConfig{Level: "info", Format: "json", Output: "file"}},
		{"unwritable file path", models.LoggingConfig{Level: "info", Format: "json", Output: "file", FilePath: "/nonexistent/directory/test.log"}},
		{"invalid level", models.LoggingConfig{Level: "invalid", Format: "json", Output: "stdout"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Setup(tt.cfg, testVersion); err == nil {
				t.Error("expected error")
			}
		})
	}
}
