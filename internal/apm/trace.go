package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for one instrumentation scope.
type Tracer interface {
	Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, Span)
}

// Span is the subset of trace.Span the business code uses.
type Span interface {
	SetAttributes(kv ...attribute.KeyValue)
	AddEvent(name string, attrs ...attribute.KeyValue)
	NoticeError(err error)
	End()
}

type openTracer struct {
	tracer trace.Tracer
}

// NewTracer returns a tracer backed by the global provider.
func NewTracer(name string) Tracer {
	return &openTracer{tracer: otel.Tracer(name)}
}

func (t *openTracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &traceSpan{span: span}
}

type traceSpan struct {
	span trace.Span
}

func (s *traceSpan) SetAttributes(kv ...attribute.KeyValue) { s.span.SetAttributes(kv...) }

func (s *traceSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// NoticeError records err and marks the span failed. Nil is ignored.
func (s *traceSpan) NoticeError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *traceSpan) End() { s.span.End() }
