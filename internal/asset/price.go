package asset

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PricePrecision is the number of fractional digits a price rate keeps.
const PricePrecision = 18

// Price is the exchange rate of one base unit expressed in quote units.
// Example: ETH/USDS = 2000.50.
type Price struct {
	rate          decimal.Decimal
	base          Code
	quote         Code
	baseDecimals  uint8
	quoteDecimals uint8
	timestamp     time.Time
}

// NewPrice creates a price. The rate is truncated to PricePrecision digits.
func NewPrice(base, quote *Asset, rate decimal.Decimal, timestamp time.Time) (Price, error) {
	if base == nil || quote == nil {
		return Price{}, ErrNilAsset
	}
	if rate.IsNegative() {
		return Price{}, fmt.Errorf("asset: negative price rate %s", rate)
	}
	return Price{
		rate:          rate.Truncate(PricePrecision),
		base:          base.Code(),
		quote:         quote.Code(),
		baseDecimals:  base.Decimals(),
		quoteDecimals: quote.Decimals(),
		timestamp:     timestamp,
	}, nil
}

// MustNewPrice is NewPrice for literals.
func MustNewPrice(base, quote *Asset, rate string, timestamp time.Time) Price {
	p, err := NewPrice(base, quote, decimal.RequireFromString(rate), timestamp)
	if err != nil {
		panic(err)
	}
	return p
}

// WithRate returns a copy carrying a different rate and timestamp.
func (p Price) WithRate(rate decimal.Decimal, timestamp time.Time) Price {
	p.rate = rate.Truncate(PricePrecision)
	p.timestamp = timestamp
	return p
}

func (p Price) Rate() decimal.Decimal { return p.rate }

func (p Price) Base() Code { return p.base }

func (p Price) Quote() Code { return p.quote }

func (p Price) Timestamp() time.Time { return p.timestamp }

// Pair returns the pair symbol (e.g. "ETH/USDS").
func (p Price) Pair() string {
	return fmt.Sprintf("%s/%s", p.base, p.quote)
}

func (p Price) IsZero() bool { return p.rate.IsZero() }

// Convert converts a base amount into quote units, truncating to quote precision.
func (p Price) Convert(amount Amount) (Amount, error) {
	if amount.Code() != p.base {
		return Amount{}, fmt.Errorf("%w: expected %s, got %s", ErrAssetMismatch, p.base, amount.Code())
	}
	v := amount.Decimal().Mul(p.rate).Truncate(int32(p.quoteDecimals))
	return Amount{value: v, code: p.quote, decimals: p.quoteDecimals}, nil
}

// ConvertInverse converts a quote amount into base units, truncating to base precision.
func (p Price) ConvertInverse(amount Amount) (Amount, error) {
	if amount.Code() != p.quote {
		return Amount{}, fmt.Errorf("%w: expected %s, got %s", ErrAssetMismatch, p.quote, amount.Code())
	}
	if p.rate.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	q, _ := amount.Decimal().QuoRem(p.rate, int32(p.baseDecimals))
	return Amount{value: q, code: p.base, decimals: p.baseDecimals}, nil
}

// String returns a human-readable representation.
func (p Price) String() string {
	return fmt.Sprintf("%s %s", p.rate.String(), p.Pair())
}

// Age returns how old this price is relative to now.
func (p Price) Age(now time.Time) time.Duration {
	return now.Sub(p.timestamp)
}

// IsStale returns true if the price is older than maxAge at now.
func (p Price) IsStale(now time.Time, maxAge time.Duration) bool {
	return p.Age(now) > maxAge
}

type priceJSON struct {
	Base          Code      `json:"base"`
	Quote         Code      `json:"quote"`
	Rate          string    `json:"rate"`
	BaseDecimals  uint8     `json:"base_decimals"`
	QuoteDecimals uint8     `json:"quote_decimals"`
	Timestamp     time.Time `json:"timestamp"`
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(priceJSON{
		Base: p.base, Quote: p.quote, Rate: p.rate.String(),
		BaseDecimals: p.baseDecimals, QuoteDecimals: p.quoteDecimals,
		Timestamp: p.timestamp,
	})
}

func (p *Price) UnmarshalJSON(data []byte) error {
	var raw priceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rate, err := decimal.NewFromString(raw.Rate)
	if err != nil {
		return fmt.Errorf("asset: price rate %q: %w", raw.Rate, err)
	}
	*p = Price{
		rate: rate, base: raw.Base, quote: raw.Quote,
		baseDecimals: raw.BaseDecimals, quoteDecimals: raw.QuoteDecimals,
		timestamp: raw.Timestamp,
	}
	return nil
}
