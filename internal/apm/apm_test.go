package apm

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseProvider(t *testing.T) {
	tests := map[string]Provider{
		"zipkin":    ZipkinProvider,
		"OTLP-GRPC": OTLPGRPCProvider,
		"otlp-http": OTLPHTTPProvider,
		"console":   ConsoleProvider,
		"":          EmptyProvider,
		"newrelic":  EmptyProvider,
	}
	for in, want := range tests {
		if got := ParseProvider(in); got != want {
			t.Errorf("ParseProvider(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTracer_RecordsErrors(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := NewTracer("test").Start(context.Background(), "saga.step", attribute.String("step", "mint"))
	span.NoticeError(nil)
	span.NoticeError(errors.New("bank down"))
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d", len(ended))
	}
	if ended[0].Name() != "saga.step" || ended[0].Status().Code != codes.Error {
		t.Errorf("span = %s status %v", ended[0].Name(), ended[0].Status())
	}
}
