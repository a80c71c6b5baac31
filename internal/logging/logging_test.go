package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestInitLoggerWritesJSONFile(t *testing.T) {
	defer SetLogger(nil)
	path := filepath.Join(t.TempDir(), "logs", "facegate.log")

	flush, err := InitLogger(Options{File: path, Level: "info"})
	if err != nil {
		t.Fatalf("InitLogger() error = %v", err)
	}
	Debug("hidden at info level")
	Info("Login succeeded", zap.String("method", "face"))
	WarnLog("Camera open attempt %d/%d failed", 1, 3)
	flush()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d:\n%s", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "Login succeeded" || entry["method"] != "face" {
		t.Errorf("unexpected entry %v", entry)
	}
	if !strings.Contains(lines[1], "Camera open attempt 1/3 failed") {
		t.Errorf("printf helper not formatted: %s", lines[1])
	}
}

func TestInitLoggerRejectsBadLevel(t *testing.T) {
	if _, err := InitLogger(Options{Level: "chatty"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNoSinksIsNop(t *testing.T) {
	defer SetLogger(nil)
	flush, err := InitLogger(Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer flush()
	if GetLogger().Core().Enabled(zap.ErrorLevel) {
		t.Error("expected a no-op logger without sinks")
	}
}
