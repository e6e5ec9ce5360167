// Package metrics configures the OpenTelemetry meter provider.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// MetricProvider is a running meter pipeline.
type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

// Provider names a metric reader.
type Provider string

const (
	PrometheusProvider Provider = "prometheus"
	OtelCollector      Provider = "otlp-grpc"
)

// ProviderCfg configures one reader.
type ProviderCfg struct {
	Provider Provider
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// Config is assembled from OptionFn values.
type Config struct {
	ServiceName string
	Provider    []ProviderCfg
}

type OptionFn func(config Config) Config

func WithServiceName(serviceName string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = serviceName
		return config
	}
}

func WithProviderConfig(provider ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Provider = append(config.Provider, provider)
		return config
	}
}

func readers(ctx context.Context, cfg Config) ([]sdkmetric.Reader, error) {
	var out []sdkmetric.Reader
	for _, p := range cfg.Provider {
		switch p.Provider {
		case PrometheusProvider:
			exp, err := prometheus.New()
			if err != nil {
				return nil, fmt.Errorf("metrics: prometheus exporter: %w", err)
			}
			out = append(out, exp)
		case OtelCollector:
			opts := []otlpmetricgrpc.Option{
				otlpmetricgrpc.WithEndpointURL(p.Endpoint),
				otlpmetricgrpc.WithHeaders(p.Headers),
			}
			if p.Insecure {
				opts = append(opts, otlpmetricgrpc.WithInsecure())
			}
			exp, err := otlpmetricgrpc.New(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("metrics: otlp exporter: %w", err)
			}
			out = append(out, sdkmetric.NewPeriodicReader(exp))
		default:
			return nil, fmt.Errorf("metrics: unknown provider %q", p.Provider)
		}
	}
	return out, nil
}

// NewMetricProvider installs a global meter provider. With no providers
// configured it falls back to the Prometheus reader served at /metrics.
func NewMetricProvider(ctx context.Context, options ...OptionFn) (MetricProvider, error) {
	var cfg Config
	for _, opt := range options {
		cfg = opt(cfg)
	}
	if len(cfg.Provider) == 0 {
		cfg.Provider = []ProviderCfg{{Provider: PrometheusProvider}}
	}

	rs, err := readers(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(resource.NewSchemaless(semconv.ServiceNameKey.String(cfg.ServiceName))),
	}
	for _, r := range rs {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp, nil
}
