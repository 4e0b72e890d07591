package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crawlq/internal/config"
	"crawlq/internal/logging"
)

func TestNewFromConfigWritesJSONLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "json"

	var console bytes.Buffer
	logger, closeLog, err := logging.New(logging.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		Console:  &console,
		FilePath: filepath.Join(cfg.Paths.LogDir, "crawlq.log"),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = closeLog() })
	logger.Info("queue opened", logging.String(logging.FieldComponent, "queue"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "crawlq.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("log file is not JSON: %v (%q)", err, content)
	}
	if entry["msg"] != "queue opened" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", entry)
	}
	if !strings.Contains(console.String(), "queue opened") {
		t.Fatalf("expected console copy, got %q", console.String())
	}
}

func TestCloseReleasesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawlq.log")
	var console bytes.Buffer
	logger, closeLog, err := logging.New(logging.Options{Format: "json", Console: &console, FilePath: path})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("before close")

	if err := closeLog(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := closeLog(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	record := slog.NewRecord(time.Now(), slog.LevelInfo, "after close", 0)
	if err := logger.Handler().Handle(context.Background(), record); err == nil {
		t.Fatal("expected writes to a closed log file to fail")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "before close") || strings.Contains(string(content), "after close") {
		t.Fatalf("unexpected log file content: %q", content)
	}
	if !strings.Contains(console.String(), "after close") {
		t.Fatalf("console should still receive records: %q", console.String())
	}
}

func TestNewWithoutFileHasNoopClose(t *testing.T) {
	_, closeLog, err := logging.New(logging.Options{Format: "json", Console: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := closeLog(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestConsoleLoggerIsPlainWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := logging.New(logging.Options{Format: "console", Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("seeded", logging.Int64(logging.FieldCommandID, 7))

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no ANSI escapes for non-terminal writer, got %q", out)
	}
	if !strings.Contains(out, "command_id=7") {
		t.Fatalf("expected command_id attribute, got %q", out)
	}
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no source location at info level, got %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := logging.New(logging.Options{Format: "json", Level: "warn", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info record leaked through warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn record missing: %q", buf.String())
	}
}

func TestWithContextAddsRunAndCommandFields(t *testing.T) {
	var buf bytes.Buffer
	base, _, err := logging.New(logging.Options{Format: "json", Level: "debug", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := logging.WithRunID(context.Background(), "run-1")
	ctx = logging.WithCommand(ctx, 42, "detail")

	logging.WithContext(ctx, base).Info("executing")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldRunID] != "run-1" {
		t.Fatalf("unexpected run_id: %v", entry[logging.FieldRunID])
	}
	if entry[logging.FieldCommandID] != float64(42) {
		t.Fatalf("unexpected command_id: %v", entry[logging.FieldCommandID])
	}
	if entry[logging.FieldKind] != "detail" {
		t.Fatalf("unexpected kind: %v", entry[logging.FieldKind])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := logging.New(logging.Options{Format: "json", Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "fetch failed", "fetch_failed")

	out := buf.String()
	if !strings.Contains(out, `"event_type":"fetch_failed"`) {
		t.Fatalf("missing event_type: %q", out)
	}
	if !strings.Contains(out, `"error_hint"`) {
		t.Fatalf("missing error_hint: %q", out)
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(context.Background(), 12) {
		t.Fatal("expected nop logger to be disabled at every level")
	}
}
