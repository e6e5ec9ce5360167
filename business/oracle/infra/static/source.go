// Package static provides a price source with configured rates. It backs pegs
// (USDS/USD = 1), local runs and market-drop simulations.
package static

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/stablecoin-engine/business/oracle/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// Source serves fixed rates, observed at the time of the call.
type Source struct {
	id       string
	priority int
	now      func() time.Time

	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	down   bool
}

// New creates a source. Keys of prices are "BASE/QUOTE".
func New(id string, priority int, prices map[string]decimal.Decimal) *Source {
	s := &Source{
		id:       id,
		priority: priority,
		now:      time.Now,
		prices:   make(map[string]decimal.Decimal, len(prices)),
	}
	for pair, p := range prices {
		s.prices[domain.NormalizePair(pair)] = p
	}
	return s
}

// Parse builds a source from string rates, as found in config.
func Parse(id string, priority int, prices map[string]string) (*Source, error) {
	parsed := make(map[string]decimal.Decimal, len(prices))
	for pair, v := range prices {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext(id+": price for "+pair), apperror.WithCause(err))
		}
		parsed[pair] = d
	}
	return New(id, priority, parsed), nil
}

func (s *Source) ID() string { return s.id }

func (s *Source) Priority() int { return s.priority }

func (s *Source) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.down
}

// Quote returns the configured rate.
func (s *Source) Quote(_ context.Context, base, quote asset.Code) (domain.PriceQuote, error) {
	pair := domain.PairKey(base, quote)

	s.mu.RLock()
	p, ok := s.prices[pair]
	s.mu.RUnlock()
	if !ok {
		return domain.PriceQuote{}, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithContext(s.id+": no rate for "+pair), apperror.WithRetryable(false))
	}
	return domain.PriceQuote{
		Base:       base.Normalize(),
		Quote:      quote.Normalize(),
		Price:      p,
		SourceID:   s.id,
		ObservedAt: s.now(),
	}, nil
}

// Set replaces the rate of a pair.
func (s *Source) Set(base, quote asset.Code, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[domain.PairKey(base, quote)] = price
	s.mu.Unlock()
}

// Shock multiplies every rate whose base is one of bases by factor, e.g. 0.7
// for a 30% drop of those assets.
func (s *Source) Shock(factor decimal.Decimal, bases ...asset.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bases {
		prefix := string(b.Normalize()) + "/"
		for pair, p := range s.prices {
			if strings.HasPrefix(pair, prefix) {
				s.prices[pair] = p.Mul(factor)
			}
		}
	}
}

// SetHealthy toggles availability.
func (s *Source) SetHealthy(healthy bool) {
	s.mu.Lock()
	s.down = !healthy
	s.mu.Unlock()
}
