// Package app contains the oracle aggregator and the source ports it consumes.
package app

import (
	"context"
	"time"

	"github.com/fd1az/stablecoin-engine/business/oracle/domain"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// Source is one independent, untrusted price feed.
type Source interface {
	// ID uniquely names the source in logs, metrics and aggregated prices.
	ID() string

	// Priority is the configured rank; lower numbers weigh more.
	Priority() int

	// Quote fetches the current price of base in quote units.
	Quote(ctx context.Context, base, quote asset.Code) (domain.PriceQuote, error)

	// IsHealthy reports whether the source is worth querying right now.
	IsHealthy() bool
}

// HistoricalSource can answer for a past instant on its own. Sources that do
// not implement it are replayed from the aggregator's recorded history.
type HistoricalSource interface {
	Source
	QuoteAt(ctx context.Context, base, quote asset.Code, at time.Time) (domain.PriceQuote, error)
}
