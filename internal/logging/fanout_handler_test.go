package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewFanoutHandlerNilHandlers(t *testing.T) {
	h := newFanoutHandler(nil, nil)
	if _, ok := h.(NoopHandler); !ok {
		t.Errorf("expected NoopHandler for all nil handlers, got %T", h)
	}
}

func TestNewFanoutHandlerSingleHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)

	if h := newFanoutHandler(nil, inner); h != inner {
		t.Error("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsPerHandlerLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled when any handler accepts the level")
	}

	logger := slog.New(h).With("component", "worker")
	logger.Debug("claim attempt")
	logger.Info("claimed")

	if strings.Contains(infoBuf.String(), "claim attempt") {
		t.Fatalf("info handler received debug record: %q", infoBuf.String())
	}
	if !strings.Contains(infoBuf.String(), "claimed") || !strings.Contains(debugBuf.String(), "claim attempt") {
		t.Fatalf("records missing: info=%q debug=%q", infoBuf.String(), debugBuf.String())
	}
	if !strings.Contains(infoBuf.String(), `"component":"worker"`) {
		t.Fatalf("WithAttrs not propagated: %q", infoBuf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestFanoutHandlerKeepsWritingPastFailingSink(t *testing.T) {
	var console bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(failingWriter{}, nil),
		slog.NewJSONHandler(&console, nil),
	)

	err := slog.New(h).Handler().Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "command completed", 0))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected sink error to be reported, got %v", err)
	}
	if !strings.Contains(console.String(), "command completed") {
		t.Fatalf("healthy sink missed the record: %q", console.String())
	}
}

func TestFanoutHandlerGroupsEverySink(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(newFanoutHandler(slog.NewJSONHandler(&a, nil), slog.NewJSONHandler(&b, nil)))

	logger.WithGroup("fetch").Info("attempt", "n", 2)

	for _, out := range []string{a.String(), b.String()} {
		if !strings.Contains(out, `"fetch":{"n":2}`) {
			t.Fatalf("group missing: %q", out)
		}
	}
}
