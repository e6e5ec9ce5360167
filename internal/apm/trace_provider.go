// Package apm configures OpenTelemetry tracing.
package apm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/stablecoin-engine/internal/logger"
)

// Provider names a span exporter.
type Provider string

const (
	ZipkinProvider   Provider = "zipkin"
	OTLPGRPCProvider Provider = "otlp-grpc"
	OTLPHTTPProvider Provider = "otlp-http"
	ConsoleProvider  Provider = "console"
	EmptyProvider    Provider = "none"
)

// ParseProvider maps a config string to a Provider, defaulting to none.
func ParseProvider(s string) Provider {
	switch p := Provider(strings.ToLower(s)); p {
	case ZipkinProvider, OTLPGRPCProvider, OTLPHTTPProvider, ConsoleProvider:
		return p
	default:
		return EmptyProvider
	}
}

// TraceProvider is a running tracer pipeline.
type TraceProvider interface {
	Stop() error
}

// Options configures NewTraceProvider.
type Options struct {
	Provider    Provider
	Endpoint    string
	Headers     map[string]string
	ServiceName string
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type emptyProvider struct{}

func (emptyProvider) Stop() error { return nil }

// NewTraceProvider installs a global tracer provider exporting to opts.Provider.
// EmptyProvider leaves the global no-op provider in place.
func NewTraceProvider(ctx context.Context, log logger.LoggerInterface, opts Options) (TraceProvider, error) {
	if opts.Provider == EmptyProvider || opts.Provider == "" {
		return emptyProvider{}, nil
	}

	exp, err := newExporter(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("apm: %s exporter: %w", opts.Provider, err)
	}

	rsrc, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(opts.ServiceName),
			attribute.String("otel.provider", string(opts.Provider)),
		))
	if err != nil {
		// Schema URL conflicts only drop the default attributes.
		rsrc = resource.NewSchemaless(semconv.ServiceNameKey.String(opts.ServiceName))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsrc),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	log.Info(ctx, "tracing enabled", "provider", string(opts.Provider), "endpoint", opts.Endpoint)
	return &traceProvider{tp: tp}, nil
}

func newExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	switch opts.Provider {
	case ZipkinProvider:
		return zipkin.New(opts.Endpoint)
	case OTLPGRPCProvider:
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpointURL(opts.Endpoint),
			otlptracegrpc.WithHeaders(opts.Headers),
		)
	case OTLPHTTPProvider:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(opts.Endpoint),
			otlptracehttp.WithHeaders(opts.Headers),
		)
	case ConsoleProvider:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("unknown provider %q", opts.Provider)
	}
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return o.tp.Shutdown(ctx)
}
