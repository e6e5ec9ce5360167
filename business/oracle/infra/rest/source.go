// Package rest provides a price source polling a Binance-compatible 24h ticker
// endpoint over the instrumented HTTP client.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/stablecoin-engine/business/oracle/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/httpclient"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/stablecoin-engine/business/oracle/infra/rest"

	tickerEndpoint = "/api/v3/ticker/24hr"
	httpTimeout    = 5 * time.Second
)

// Config holds configuration for a REST source.
type Config struct {
	ID       string
	Priority int
	BaseURL  string
	Timeout  time.Duration
	// RequestsPerMinute caps outbound calls. Zero disables limiting.
	RequestsPerMinute int
	// Symbols maps "BASE/QUOTE" to the venue symbol.
	Symbols map[string]string
}

// Source fetches last trade prices from a REST ticker.
type Source struct {
	cfg     Config
	client  *httpclient.Client
	limiter *ratelimit.Limiter
	logger  logger.LoggerInterface
	tracer  trace.Tracer
}

// New creates a REST source.
func New(cfg Config, log logger.LoggerInterface) (*Source, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.Validation(cfg.ID + ": base url is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpTimeout
	}

	tracer := otel.Tracer(tracerName)
	client, err := httpclient.New(cfg.ID, cfg.BaseURL,
		httpclient.WithTimeout(timeout),
		httpclient.WithTracer(tracer),
		httpclient.WithBodyTracing(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	symbols := make(map[string]string, len(cfg.Symbols))
	for pair, sym := range cfg.Symbols {
		symbols[domain.NormalizePair(pair)] = sym
	}
	cfg.Symbols = symbols

	return &Source{
		cfg:     cfg,
		client:  client,
		limiter: ratelimit.New(cfg.ID, cfg.RequestsPerMinute),
		logger:  log,
		tracer:  tracer,
	}, nil
}

func (s *Source) ID() string { return s.cfg.ID }

func (s *Source) Priority() int { return s.cfg.Priority }

// IsHealthy always reports true. Transport failures are tracked by the
// guard decorator.
func (s *Source) IsHealthy() bool { return true }

// TickerResponse is the subset of the 24h ticker the source reads.
type TickerResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	Volume             string `json:"volume"`
	PriceChangePercent string `json:"priceChangePercent"`
	CloseTime          int64  `json:"closeTime"`
}

// APIError is the venue error body.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// Quote fetches the ticker for the pair's symbol.
func (s *Source) Quote(ctx context.Context, base, quote asset.Code) (domain.PriceQuote, error) {
	pair := domain.PairKey(base, quote)
	symbol, ok := s.cfg.Symbols[pair]
	if !ok {
		return domain.PriceQuote{}, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithContext(s.cfg.ID+": no symbol for "+pair), apperror.WithRetryable(false))
	}

	ctx, span := s.tracer.Start(ctx, "oracle.rest.quote",
		trace.WithAttributes(
			attribute.String("source", s.cfg.ID),
			attribute.String("symbol", symbol),
		),
	)
	defer span.End()

	if err := s.limiter.Wait(ctx); err != nil {
		return domain.PriceQuote{}, err
	}

	var result TickerResponse
	err := s.client.Get(ctx, tickerEndpoint, url.Values{"symbol": {symbol}}, &result,
		httpclient.WithAttributes(
			attribute.String("endpoint", "ticker"),
			attribute.String("symbol", symbol),
		),
		httpclient.WithErrorMapper(s.errorHandler),
	)
	if err != nil {
		span.RecordError(err)
		return domain.PriceQuote{}, err
	}

	q, err := result.toQuote(s.cfg.ID, base.Normalize(), quote.Normalize())
	if err != nil {
		return domain.PriceQuote{}, err
	}

	s.logger.Debug(ctx, "rest quote",
		"source", s.cfg.ID,
		"symbol", symbol,
		"price", q.Price.String())
	return q, nil
}

func (t TickerResponse) toQuote(sourceID string, base, quote asset.Code) (domain.PriceQuote, error) {
	price, err := decimal.NewFromString(t.LastPrice)
	if err != nil {
		return domain.PriceQuote{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithCause(err), apperror.WithContext(sourceID+": lastPrice "+t.LastPrice))
	}
	q := domain.PriceQuote{
		Base:       base,
		Quote:      quote,
		Price:      price,
		SourceID:   sourceID,
		ObservedAt: time.UnixMilli(t.CloseTime).UTC(),
	}
	if v, err := decimal.NewFromString(t.Volume); err == nil {
		q.Volume24h = &v
	}
	if c, err := decimal.NewFromString(t.PriceChangePercent); err == nil {
		q.Change24h = &c
	}
	return q, nil
}

// errorHandler surfaces the venue's error message while keeping the status
// classification of the shared handler.
func (s *Source) errorHandler(status int, body []byte) error {
	err := httpclient.StatusError(s.cfg.ID)(status, body)
	if err == nil {
		return nil
	}
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0 {
		if appErr, ok := err.(*apperror.AppError); ok {
			appErr.Context = fmt.Sprintf("%s: venue error %d: %s", s.cfg.ID, apiErr.Code, apiErr.Message)
		}
	}
	return err
}
