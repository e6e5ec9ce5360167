// Package guard decorates a network price source with a circuit breaker and a
// short-lived quote cache.
package guard

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/stablecoin-engine/business/oracle/app"
	"github.com/fd1az/stablecoin-engine/business/oracle/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/circuitbreaker"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

var _ app.Source = (*Source)(nil)

const maxCachedPairs = 256

// Source serves cached quotes while fresh and routes misses through a breaker.
type Source struct {
	inner  app.Source
	cb     *circuitbreaker.CircuitBreaker[domain.PriceQuote]
	quotes *expirable.LRU[string, domain.PriceQuote]
	logger logger.LoggerInterface
}

// Wrap guards inner. A zero ttl disables caching.
func Wrap(inner app.Source, ttl time.Duration, log logger.LoggerInterface) *Source {
	s := &Source{inner: inner, logger: log}
	if ttl > 0 {
		s.quotes = expirable.NewLRU[string, domain.PriceQuote](maxCachedPairs, nil, ttl)
	}

	cfg := circuitbreaker.DefaultConfig(inner.ID())
	// Only transport-level failures trip the breaker; a missing pair does not.
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || !apperror.IsRetryable(err)
	}
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "price source breaker state changed",
			"source", name, "from", from.String(), "to", to.String())
	}
	s.cb = circuitbreaker.New[domain.PriceQuote](cfg)
	return s
}

func (s *Source) ID() string { return s.inner.ID() }

func (s *Source) Priority() int { return s.inner.Priority() }

// IsHealthy is false while the breaker is open or the inner source is down.
func (s *Source) IsHealthy() bool {
	return !s.cb.IsOpen() && s.inner.IsHealthy()
}

// Quote returns a cached quote or fetches one through the breaker.
func (s *Source) Quote(ctx context.Context, base, quote asset.Code) (domain.PriceQuote, error) {
	key := domain.PairKey(base, quote)
	if s.quotes != nil {
		if q, ok := s.quotes.Get(key); ok {
			return q, nil
		}
	}

	q, err := s.cb.Execute(func() (domain.PriceQuote, error) {
		return s.inner.Quote(ctx, base, quote)
	})
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if s.quotes != nil {
		s.quotes.Add(key, q)
	}
	return q, nil
}
