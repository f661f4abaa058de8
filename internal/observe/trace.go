package observe

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/transcriptqa"

// Tracer returns the transcriptqa tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// Fail marks span as failed with err. Cancellation by the caller is recorded
// as an event only, so abandoned questions do not show up as errors.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		span.AddEvent("canceled")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID is the trace ID of the span in ctx, or "" without one. The
// API returns it in X-Correlation-ID so a failed question can be found in
// the logs.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the trace and span id of ctx
// attached.
func Logger(ctx context.Context) *slog.Logger {
	return WithTrace(ctx, slog.Default())
}

// WithTrace attaches the trace and span id of ctx to l. l is returned as is
// when ctx carries no span.
func WithTrace(ctx context.Context, l *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return l
	}
	return l.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
