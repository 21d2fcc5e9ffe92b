package monitoring

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingManager handles distributed tracing. It uses the global tracer
// provider, which is a no-op until an SDK provider is installed.
type TracingManager struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracingManager creates a new tracing manager
func NewTracingManager(serviceName string) *TracingManager {
	return &TracingManager{
		tracer: otel.Tracer(serviceName),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
}

// StartSpan starts a new span
func (tm *TracingManager) StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, operationName, trace.WithAttributes(attrs...))
}

// StartHTTPSpan starts a server span for an inbound request
func (tm *TracingManager) StartHTTPSpan(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
		),
	)
}

// StartClientSpan starts a client span for an outbound store call
func (tm *TracingManager) StartClientSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "store."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// InjectTraceContext writes the span context into outbound headers
func (tm *TracingManager) InjectTraceContext(ctx context.Context, headers http.Header) {
	tm.propagator.Inject(ctx, propagation.HeaderCarrier(headers))
}

// ExtractTraceContext reads a span context from inbound headers
func (tm *TracingManager) ExtractTraceContext(ctx context.Context, headers http.Header) context.Context {
	return tm.propagator.Extract(ctx, propagation.HeaderCarrier(headers))
}

// RecordError marks the span as failed
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
