package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/config"
	"scribe/internal/logging"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "scribe.log")

	logger, closer, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close log file: %v", err)
	}
	logger.Info("after close")

	content := readLog(t, cfg.Logging.File)
	if !strings.Contains(content, "hello file") {
		t.Fatal("expected message in log file")
	}
	if strings.Contains(content, "after close") {
		t.Fatal("expected log file released after Close")
	}
}

func TestConsoleLoggerPromotesComponentAndOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, closer, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closer.Close()

	logging.NewComponentLogger(logger, "poller").Info("tick complete",
		logging.String(logging.FieldTaskID, "abc"),
		logging.Error(errors.New("boom here")),
	)

	content := readLog(t, logPath)
	if !strings.Contains(content, "INFO poller: tick complete") {
		t.Fatalf("expected component prefix, got %q", content)
	}
	if !strings.Contains(content, "task_id=abc") {
		t.Fatalf("expected task id attribute, got %q", content)
	}
	if !strings.Contains(content, `error="boom here"`) {
		t.Fatalf("expected quoted error, got %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, closer, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closer.Close()
	logger.Debug("message with caller")

	if !strings.Contains(readLog(t, logPath), "logger_test.go:") {
		t.Fatal("expected caller information for debug level")
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, closer, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer closer.Close()

	ctx := logging.WithCorrelationID(context.Background(), "req-7")
	logging.WithContext(ctx, logger).Warn("slow", logging.Int("count", 2))

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["level"] != "warn" || payload["msg"] != "slow" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload[logging.FieldCorrelationID] != "req-7" {
		t.Fatalf("expected correlation id, got %v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("nop logger should not be enabled")
	}
	logging.WithContext(context.Background(), nil).Info("ignored")
}
