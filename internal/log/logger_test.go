package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}
	return out
}

func TestSetupHonoursLevelAndOutput(t *testing.T) {
	logger = nil
	once = *new(sync.Once)
	t.Cleanup(func() {
		logger = nil
		once = *new(sync.Once)
	})

	var buf bytes.Buffer
	Setup(Options{Level: "WARN", Output: &buf})
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}

	Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("INFO should be filtered at WARN, got %q", buf.String())
	}
	Warn("kept")
	out := decodeLine(t, &buf)
	if out["msg"] != "kept" {
		t.Errorf("Expected msg 'kept', got %v", out["msg"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := build(Options{Format: "text", Output: &buf})
	l.Info("plain", "k", "v")
	if !strings.Contains(buf.String(), "msg=plain") || !strings.Contains(buf.String(), "k=v") {
		t.Errorf("unexpected text output: %q", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "jarscout.log")
	l := build(Options{Output: &buf, File: path, MaxSizeMB: 1})
	l.Info("to both")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Errorf("log file missing message: %q", string(data))
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stdout writer missing message: %q", buf.String())
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(func() { logger = nil })

	WithComponent("test-comp").Info("hello")

	out := decodeLine(t, &buf)
	if out["component"] != "test-comp" {
		t.Errorf("Expected component 'test-comp', got %v", out["component"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}

func TestWithScan(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(func() { logger = nil })

	WithScan("scan-123").Info("scan msg")

	out := decodeLine(t, &buf)
	if out["scan_id"] != "scan-123" {
		t.Errorf("Expected scan_id 'scan-123', got %v", out["scan_id"])
	}
}
