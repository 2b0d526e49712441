package observability

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resourcekit/internal/resterr"
)

// TracerName is the instrumentation scope of every resourcekit span.
const TracerName = "resourcekit"

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// FinishSpan records the outcome of a span and ends it. An empty outcome is
// derived from err.
func FinishSpan(span trace.Span, err error, outcome string) {
	if span == nil {
		return
	}
	if outcome == "" {
		if err != nil {
			outcome = "error"
		} else {
			outcome = "success"
		}
	}
	span.SetAttributes(attribute.String("resourcekit.outcome", outcome))
	if err != nil {
		span.SetAttributes(attribute.String("resourcekit.error.kind", errorKind(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ErrorLogFields builds structured log fields describing err.
func ErrorLogFields(err error) []any {
	if err == nil {
		return nil
	}
	fields := []any{slog.String("error", err.Error()), slog.String("error_kind", errorKind(err))}
	var rerr *resterr.Error
	if errors.As(err, &rerr) {
		if rerr.ResourceType != "" {
			fields = append(fields, slog.String("resource", rerr.ResourceType))
		}
		if rerr.Relationship != "" {
			fields = append(fields, slog.String("relationship", rerr.Relationship))
		}
		if rerr.Field != "" {
			fields = append(fields, slog.String("field", rerr.Field))
		}
	}
	return fields
}

// TraceLogFields returns the trace id of the active span, if any.
func TraceLogFields(ctx context.Context) []any {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return nil
	}
	return []any{slog.String("trace_id", spanCtx.TraceID().String())}
}
