package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "basegraph.app/docwatch"

const traceParentKey = "traceparent"

// Span is an OTel span that marks itself failed when given an error.
type Span struct {
	trace.Span
}

// StartSpan starts an internal span under whatever trace ctx carries.
//
//	ctx, span := logger.StartSpan(ctx, "poller.cycle")
//	defer span.End()
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, s := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, Span{Span: s}
}

// Fail records err on the span and sets its status. Nil is ignored.
func (s Span) Fail(err error) {
	if err == nil {
		return
	}
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
}

// TraceParent serializes the span in ctx as a W3C traceparent header value,
// or "" when ctx has no valid span.
func TraceParent(ctx context.Context) string {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get(traceParentKey)
}

// WithTraceParent returns ctx carrying the remote span described by
// traceParent. Malformed or empty values leave ctx unchanged.
func WithTraceParent(ctx context.Context, traceParent string) context.Context {
	if traceParent == "" {
		return ctx
	}
	return propagation.TraceContext{}.Extract(ctx, propagation.MapCarrier{traceParentKey: traceParent})
}
