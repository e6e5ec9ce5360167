// Package httpclient is a small JSON client for upstream venues and the bank,
// traced with otelhttp and counted per provider.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

const (
	instrumentationName = "github.com/fd1az/stablecoin-engine/internal/httpclient"

	defaultTimeout  = 10 * time.Second
	maxConnsPerHost = 5
)

// Client talks to a single upstream rooted at a base URL.
type Client struct {
	hc          *http.Client
	provider    string
	base        *url.URL
	headers     http.Header
	tracer      trace.Tracer
	traceBodies bool

	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every call made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.hc.Timeout = d
		}
	}
}

// WithHeader sets a header sent on every call.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithBodyTracing attaches response bodies to spans as events.
func WithBodyTracing() Option {
	return func(c *Client) { c.traceBodies = true }
}

// New creates a client for provider rooted at baseURL.
func New(provider, baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(provider+": invalid base url "+baseURL), apperror.WithCause(err))
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{KeepAlive: 10 * time.Second}).DialContext,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       2 * time.Minute,
		ExpectContinueTimeout: 100 * time.Millisecond,
	}
	c := &Client{
		hc: &http.Client{
			Timeout: defaultTimeout,
			Transport: otelhttp.NewTransport(transport,
				otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
					return otelhttptrace.NewClientTrace(ctx)
				}),
			),
		},
		provider: provider,
		base:     base,
		headers:  http.Header{"Accept": []string{"application/json"}},
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.GetMeterProvider().Meter(instrumentationName,
		metric.WithInstrumentationAttributes(attribute.String("provider", provider)))
	if c.requests, err = meter.Int64Counter("stablecoin_http_client_requests_total",
		metric.WithDescription("Upstream HTTP calls by outcome")); err != nil {
		return nil, err
	}
	if c.latency, err = meter.Float64Histogram("stablecoin_http_client_duration_seconds",
		metric.WithDescription("Upstream HTTP call latency"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
