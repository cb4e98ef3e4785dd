package statemachine

import (
	"context"
	"fmt"

	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "statemachine"

// startTransitionSpan creates a span around one transition request.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startTransitionSpan(ctx context.Context, m *Machine, from, to Step) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "statemachine.transition")
	addMachineAttributes(span, m)
	span.SetAttributes(
		attribute.String("from_step", string(from)),
		attribute.String("to_step", string(to)),
	)

	return ctx, span
}

// startActionSpan creates a span covering a collaborator call from Run until it settles.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startActionSpan(ctx context.Context, m *Machine, action string, step Step) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "action."+action)
	addMachineAttributes(span, m)
	span.SetAttributes(
		attribute.String("action", action),
		attribute.String("step", string(step)),
	)

	return ctx, span
}

func addMachineAttributes(span trace.Span, m *Machine) {
	span.SetAttributes(
		attribute.String("flow", m.def.Name),
		attribute.String("session_id_hash", hashID(m.sessionID)),
	)
}

// hashID creates a short hash of an ID for span attributes (privacy).
func hashID(id string) string {
	if id == "" {
		return ""
	}

	return fmt.Sprintf("%016x", xxh3.HashString(id))
}

// extractTraceContext extracts trace ID and span ID from context for logging.
func extractTraceContext(ctx context.Context) (traceID, spanID string) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()

		return spanCtx.TraceID().String(), spanCtx.SpanID().String()
	}

	return "", ""
}
