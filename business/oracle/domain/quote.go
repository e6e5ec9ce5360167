// Package domain contains price quotes and the aggregation algorithm.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// PriceQuote is one observation from one source. Never mutated.
type PriceQuote struct {
	Base       asset.Code
	Quote      asset.Code
	Price      decimal.Decimal
	SourceID   string
	ObservedAt time.Time
	Volume24h  *decimal.Decimal
	Change24h  *decimal.Decimal
}

// Pair returns "BASE/QUOTE".
func (q PriceQuote) Pair() string {
	return PairKey(q.Base, q.Quote)
}

// Validate rejects quotes that must never enter an aggregation.
func (q PriceQuote) Validate() error {
	switch {
	case q.SourceID == "":
		return apperror.New(apperror.CodeInvalidQuote, apperror.WithContext("missing source id"))
	case q.Base == "" || q.Quote == "":
		return apperror.New(apperror.CodeInvalidQuote, apperror.WithContext(q.SourceID+": missing pair"))
	case !q.Price.IsPositive():
		return apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(q.SourceID+": non-positive price "+q.Price.String()))
	case q.ObservedAt.IsZero():
		return apperror.New(apperror.CodeInvalidQuote, apperror.WithContext(q.SourceID+": missing timestamp"))
	}
	return nil
}

// IsStale reports whether the quote is older than maxAge at now. A quote from
// the future relative to now is treated as stale.
func (q PriceQuote) IsStale(now time.Time, maxAge time.Duration) bool {
	age := now.Sub(q.ObservedAt)
	return age < 0 || age > maxAge
}

// PairKey formats a pair the way configs and caches key it.
func PairKey(base, quote asset.Code) string {
	return string(base.Normalize()) + "/" + string(quote.Normalize())
}

// NormalizePair upper-cases a "base/quote" key as found in config.
func NormalizePair(pair string) string {
	base, quote, ok := strings.Cut(pair, "/")
	if !ok {
		return string(asset.Code(pair).Normalize())
	}
	return PairKey(asset.Code(base), asset.Code(quote))
}
