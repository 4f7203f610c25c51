package log

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != InfoLevel {
		t.Errorf("expected Level to be InfoLevel, got %v", cfg.Level)
	}
	if cfg.JSON {
		t.Error("expected JSON to be false")
	}
	if !cfg.Timestamp {
		t.Error("expected Timestamp to be true")
	}
	if cfg.Prefix != "nsm" {
		t.Errorf("expected Prefix to be 'nsm', got %s", cfg.Prefix)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", InfoLevel, false},
		{"debug", DebugLevel, false},
		{"WARN", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"chatty", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: DebugLevel, JSON: true, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("registered", "bus", "a.b.c")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "registered" {
		t.Errorf("expected msg 'registered', got %v", entry["msg"])
	}
	if entry["bus"] != "a.b.c" {
		t.Errorf("expected bus 'a.b.c', got %v", entry["bus"])
	}
}

func TestNewLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: WarnLevel, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("hidden")
	logger.Debug("hidden too")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn level, got %q", buf.String())
	}

	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn output, got %q", buf.String())
	}
}

func TestNewLoggerFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "nsm.log")

	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: InfoLevel, File: path, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info("to file")
	logger.close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("expected log file to contain message, got %q", string(data))
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: InfoLevel, Output: &buf})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.With("seat", 1).Info("session")
	if !strings.Contains(buf.String(), "seat=1") {
		t.Errorf("expected child fields in output, got %q", buf.String())
	}
}

func TestTraceID(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc")
	if got := TraceIDFromContext(ctx); got != "abc" {
		t.Errorf("expected trace id 'abc', got %q", got)
	}

	ctx = ContextWithTraceID(context.Background(), "")
	id := TraceIDFromContext(ctx)
	if len(id) != 36 {
		t.Errorf("expected generated uuid, got %q", id)
	}

	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty trace id, got %q", got)
	}
}

func TestNewTraceIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTraceID()
		if seen[id] {
			t.Fatalf("duplicate trace id %s", id)
		}
		seen[id] = true
	}
}

func TestInitReplacesGlobal(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: DebugLevel, Prefix: "test", Output: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = Init(DefaultConfig()) })

	SubPackage("dbus").Debug("hello")
	if !strings.Contains(buf.String(), "test/dbus") {
		t.Errorf("expected sub-package prefix, got %q", buf.String())
	}

	buf.Reset()
	ContextLogger(ContextWithTraceID(context.Background(), "t-1")).Info("traced")
	if !strings.Contains(buf.String(), "trace_id=t-1") {
		t.Errorf("expected trace id in output, got %q", buf.String())
	}
}

func TestSubPackagePrefix(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(Config{Level: DebugLevel, Prefix: "nsm", Output: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = Init(DefaultConfig()) })

	tests := []struct {
		pkg  string
		want string
	}{
		{"service", "nsm/service"},
		{"nsm", "nsm"},
	}
	for _, tt := range tests {
		buf.Reset()
		SubPackage(tt.pkg).Info("hello")
		out := buf.String()
		if !strings.Contains(out, tt.want) {
			t.Errorf("SubPackage(%q) output %q, want prefix %q", tt.pkg, out, tt.want)
		}
		if strings.Contains(out, "nsm/nsm") {
			t.Errorf("SubPackage(%q) doubled the prefix: %q", tt.pkg, out)
		}
	}
}
