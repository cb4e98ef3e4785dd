package statemachine

import (
	"context"
	"log/slog"
	"time"
)

// Logger provides logging hooks for flow sessions.
type Logger interface {
	FlowStarted(ctx context.Context, step Step)
	TransitionExecuted(ctx context.Context, from, to Step)
	TransitionRejected(ctx context.Context, from, to Step, err error)
	ActionStarted(ctx context.Context, action string, step Step)
	ActionCompleted(ctx context.Context, action string, duration time.Duration, result ActionResult)
	FlowCompleted(ctx context.Context, destination string)
}

// DefaultLogger implements Logger using slog.
type DefaultLogger struct {
	logger *slog.Logger
}

// NewDefaultLogger creates a logger writing to l, or to slog.Default() when l is nil.
func NewDefaultLogger(l *slog.Logger) *DefaultLogger {
	if l == nil {
		l = slog.Default()
	}

	return &DefaultLogger{
		logger: l,
	}
}

func traceFields(ctx context.Context, fields []any) []any {
	traceID, spanID := extractTraceContext(ctx)
	if traceID == "" {
		return fields
	}

	return append(fields, "trace_id", traceID, "span_id", spanID)
}

func (l *DefaultLogger) FlowStarted(ctx context.Context, step Step) {
	l.logger.InfoContext(ctx, "Flow started", traceFields(ctx, []any{"step", step})...)
}

func (l *DefaultLogger) TransitionExecuted(ctx context.Context, from, to Step) {
	l.logger.InfoContext(ctx, "Transition executed", traceFields(ctx, []any{
		"from", from,
		"to", to,
	})...)
}

func (l *DefaultLogger) TransitionRejected(ctx context.Context, from, to Step, err error) {
	l.logger.WarnContext(ctx, "Transition rejected", traceFields(ctx, []any{
		"from", from,
		"to", to,
		"error", err,
	})...)
}

func (l *DefaultLogger) ActionStarted(ctx context.Context, action string, step Step) {
	l.logger.InfoContext(ctx, "Action started", traceFields(ctx, []any{
		"action", action,
		"step", step,
	})...)
}

func (l *DefaultLogger) ActionCompleted(ctx context.Context, action string, duration time.Duration, result ActionResult) {
	fields := []any{
		"action", action,
		"duration_ms", duration.Milliseconds(),
		"kind", result.Kind,
	}

	if result.OK() {
		l.logger.InfoContext(ctx, "Action completed", traceFields(ctx, fields)...)

		return
	}

	fields = append(fields, "reason", result.Reason, "message", result.Message)
	l.logger.ErrorContext(ctx, "Action completed with error", traceFields(ctx, fields)...)
}

func (l *DefaultLogger) FlowCompleted(ctx context.Context, destination string) {
	l.logger.InfoContext(ctx, "Flow completed", traceFields(ctx, []any{"destination", destination})...)
}
