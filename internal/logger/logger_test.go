package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestJSONOutputAndFiltering(t *testing.T) {
	var buf bytes.Buffer
	initWriter(&buf, "warn", "json")
	defer initWriter(&bytes.Buffer{}, "info", "json")

	Info("hidden %d", 1)
	Warn("fetch failed after %d attempts", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	if entry["msg"] != "fetch failed after 3 attempts" {
		t.Errorf("Unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("Unexpected level: %v", entry["level"])
	}

	source, ok := entry["source"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected source attribute, got %v", entry["source"])
	}
	if file, _ := source["file"].(string); !strings.HasSuffix(file, "logger_test.go") {
		t.Errorf("Source should point at the caller, got %v", source["file"])
	}
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	initWriter(&buf, "debug", "text")
	defer initWriter(&bytes.Buffer{}, "info", "json")

	Debug("tick %s", "skipped")
	if !strings.Contains(buf.String(), "tick skipped") {
		t.Errorf("Expected text output to contain message, got %q", buf.String())
	}
}
