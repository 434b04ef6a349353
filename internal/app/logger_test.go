package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heartmarshall/coursesync/internal/config"
)

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, config.LogConfig{Level: "info", Format: "json"}))
	logger.Info("sync finished", slog.Int("created", 3))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("JSON handler should produce valid JSON: %v", err)
	}
	if m["msg"] != "sync finished" {
		t.Errorf("msg = %v", m["msg"])
	}
	if m["created"] != float64(3) {
		t.Errorf("created = %v", m["created"])
	}
}

func TestNewHandler_TextDebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, config.LogConfig{Level: "debug", Format: "text"}))
	logger.Debug("source test")

	if !strings.Contains(buf.String(), "source=") {
		t.Errorf("debug text output should include source: %q", buf.String())
	}
}

func TestNewHandler_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, config.LogConfig{Level: "warn", Format: "text"}))
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn should pass at warn level")
	}
}

func TestNewLogger_SetsDefaultAndWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	logger := NewLogger(config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})

	if slog.Default() != logger {
		t.Error("NewLogger should set the default logger")
	}

	logger.Info("written to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
