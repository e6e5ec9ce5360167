package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// CallOption configures a single call.
type CallOption func(*call)

type call struct {
	headers http.Header
	attrs   []attribute.KeyValue
	mapErr  ErrorMapper
}

// WithCallHeader sets a header on one call only.
func WithCallHeader(key, value string) CallOption {
	return func(c *call) { c.headers.Set(key, value) }
}

// WithAttributes tags the call's span and metrics.
func WithAttributes(attrs ...attribute.KeyValue) CallOption {
	return func(c *call) { c.attrs = append(c.attrs, attrs...) }
}

// WithErrorMapper replaces StatusError for one call.
func WithErrorMapper(m ErrorMapper) CallOption {
	return func(c *call) { c.mapErr = m }
}

// Get issues a GET and decodes a 2xx JSON body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodGet, c.resolve(path, query), nil, out, opts)
}

// PostJSON encodes body as JSON and decodes a 2xx response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(c.provider+": encode request"), apperror.WithCause(err))
	}
	return c.do(ctx, http.MethodPost, c.resolve(path, nil), payload, out, opts)
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte, out any, opts []CallOption) (err error) {
	cl := call{headers: c.headers.Clone(), mapErr: StatusError(c.provider)}
	for _, opt := range opts {
		opt(&cl)
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("provider", c.provider),
	}, cl.attrs...)
	ctx, span := c.tracer.Start(ctx, "http "+method, trace.WithAttributes(attrs...))
	started := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(apperror.GetCode(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		set := metric.WithAttributes(append(attrs, attribute.String("outcome", outcome))...)
		c.requests.Add(ctx, 1, set)
		c.latency.Record(ctx, time.Since(started).Seconds(), set)
		span.End()
	}()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
		cl.headers.Set("Content-Type", "application/json")
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return apperror.New(apperror.CodeInvalidInput, apperror.WithContext(c.provider), apperror.WithCause(err))
	}
	req.Header = cl.headers

	resp, err := c.hc.Do(req)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeServiceUnavailable, c.provider)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return apperror.Wrap(err, apperror.CodeServiceUnavailable, c.provider+": read body")
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if c.traceBodies {
		span.AddEvent("response", trace.WithAttributes(
			attribute.String("http.response_body", truncate(raw, 2048))))
	}

	if err := cl.mapErr(resp.StatusCode, raw); err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperror.New(apperror.CodeExternalServiceError,
			apperror.WithContext(c.provider+": undecodable "+strconv.Itoa(resp.StatusCode)+" body"),
			apperror.WithCause(err), apperror.WithRetryable(false))
	}
	return nil
}
