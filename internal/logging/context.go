package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCommandID identifies the queue record being executed.
	FieldCommandID = "command_id"
	// FieldKind is the command variant tag.
	FieldKind = "kind"
	// FieldRunID identifies one invocation of the worker loop.
	FieldRunID = "run_id"
	// FieldWorker identifies a worker goroutine within a run.
	FieldWorker = "worker"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

type contextKey int

const (
	runIDKey contextKey = iota
	commandKey
	workerKey
)

type commandRef struct {
	id   int64
	kind string
}

// WithRunID tags ctx with the worker run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithWorker tags ctx with the worker identifier.
func WithWorker(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, workerKey, worker)
}

// WithCommand tags ctx with the command currently executing.
func WithCommand(ctx context.Context, id int64, kind string) context.Context {
	return context.WithValue(ctx, commandKey, commandRef{id: id, kind: kind})
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, slog.String(FieldRunID, runID))
	}
	if worker, ok := ctx.Value(workerKey).(string); ok && worker != "" {
		fields = append(fields, slog.String(FieldWorker, worker))
	}
	if ref, ok := ctx.Value(commandKey).(commandRef); ok {
		fields = append(fields, slog.Int64(FieldCommandID, ref.id), slog.String(FieldKind, ref.kind))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return slog.New(logger.Handler().WithAttrs(fields))
}
