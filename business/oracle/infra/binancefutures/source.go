// Package binancefutures serves mark prices from the Binance USD-M futures
// premium index.
package binancefutures

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fd1az/stablecoin-engine/business/oracle/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

const (
	baseURLProduction = "https://fapi.binance.com"
	httpTimeout       = 5 * time.Second
)

// Config holds configuration for a futures mark-price source.
type Config struct {
	ID       string
	Priority int
	// BaseURL overrides the production endpoint.
	BaseURL string
	Timeout time.Duration
	// Symbols maps "BASE/QUOTE" to the perpetual symbol.
	Symbols map[string]string
}

// Source reads the mark price of a perpetual contract.
type Source struct {
	cfg    Config
	client *futures.Client
	logger logger.LoggerInterface
}

// New creates a futures source. Only public endpoints are used, so no keys
// are configured.
func New(cfg Config, log logger.LoggerInterface) *Source {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = httpTimeout
	}

	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	client.BaseURL = baseURLProduction
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	symbols := make(map[string]string, len(cfg.Symbols))
	for pair, sym := range cfg.Symbols {
		symbols[domain.NormalizePair(pair)] = sym
	}
	cfg.Symbols = symbols

	return &Source{cfg: cfg, client: client, logger: log}
}

func (s *Source) ID() string { return s.cfg.ID }

func (s *Source) Priority() int { return s.cfg.Priority }

func (s *Source) IsHealthy() bool { return true }

// Quote returns the mark price. ObservedAt is the index timestamp.
func (s *Source) Quote(ctx context.Context, base, quote asset.Code) (domain.PriceQuote, error) {
	pair := domain.PairKey(base, quote)
	symbol, ok := s.cfg.Symbols[pair]
	if !ok {
		return domain.PriceQuote{}, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithContext(s.cfg.ID+": no symbol for "+pair), apperror.WithRetryable(false))
	}

	indexes, err := s.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.PriceQuote{}, s.mapError(err, symbol)
	}
	if len(indexes) == 0 {
		return domain.PriceQuote{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("%s: no premium index for %s", s.cfg.ID, symbol)))
	}

	idx := indexes[0]
	price, err := decimal.NewFromString(idx.MarkPrice)
	if err != nil {
		return domain.PriceQuote{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s: markPrice %q", s.cfg.ID, idx.MarkPrice)))
	}

	s.logger.Debug(ctx, "mark price",
		"source", s.cfg.ID,
		"symbol", symbol,
		"price", price.String())

	return domain.PriceQuote{
		Base:       base.Normalize(),
		Quote:      quote.Normalize(),
		Price:      price,
		SourceID:   s.cfg.ID,
		ObservedAt: time.UnixMilli(idx.Time).UTC(),
	}, nil
}

// mapError classifies venue and transport errors.
func (s *Source) mapError(err error, symbol string) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		code := apperror.CodeExternalServiceError
		retryable := false
		if apiErr.Code == -1003 {
			code = apperror.CodeRateLimitExceeded
			retryable = true
		}
		return apperror.New(code,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s: venue error %d: %s", s.cfg.ID, apiErr.Code, apiErr.Message)),
			apperror.WithRetryable(retryable))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.New(apperror.CodeServiceTimeout,
			apperror.WithCause(err), apperror.WithContext(s.cfg.ID+": "+symbol))
	}
	return apperror.New(apperror.CodeServiceUnavailable,
		apperror.WithCause(err), apperror.WithContext(s.cfg.ID+": "+symbol))
}
