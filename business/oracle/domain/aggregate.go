package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// Method names how an aggregated price was produced.
type Method string

const (
	MethodWeightedMedian Method = "weighted_median"
	MethodSingleSource   Method = "single_source"
	MethodIdentity       Method = "identity"
)

// SingleSourceConfidenceCap bounds the confidence of a one-source price.
var SingleSourceConfidenceCap = asset.RatioFromString("0.75")

const weightPrecision = 18

// AggregatedPrice is derived on demand and never persisted.
type AggregatedPrice struct {
	Base       asset.Code
	Quote      asset.Code
	Price      decimal.Decimal
	Sources    []string
	Method     Method
	Confidence asset.Ratio
	ComputedAt time.Time
}

// WeightedQuote pairs a surviving quote with its source priority. Lower
// priority numbers weigh more.
type WeightedQuote struct {
	Quote    PriceQuote
	Priority int
}

func (w WeightedQuote) weight() decimal.Decimal {
	p := w.Priority
	if p < 1 {
		p = 1
	}
	return decimal.NewFromInt(1).DivRound(decimal.NewFromInt(int64(p)), weightPrecision)
}

// Identity is the price of an asset in itself.
func Identity(code asset.Code, at time.Time) AggregatedPrice {
	return AggregatedPrice{
		Base:       code,
		Quote:      code,
		Price:      decimal.NewFromInt(1),
		Method:     MethodIdentity,
		Confidence: asset.RatioFromString("1"),
		ComputedAt: at,
	}
}

// Aggregate combines the surviving quotes of one pair. registered is the
// number of sources configured for the aggregation, surviving or not.
// The result depends only on the inputs, not on their order.
//
// Confidence is survivors / registered. The aggregator passes every
// registered source, including ones that only serve other pairs, so a pair
// listed on few venues reports low confidence even when all of them answer.
func Aggregate(base, quote asset.Code, quotes []WeightedQuote, registered int, at time.Time) (AggregatedPrice, error) {
	if len(quotes) == 0 {
		return AggregatedPrice{}, apperror.New(apperror.CodeNoHealthySource,
			apperror.WithContext(PairKey(base, quote)))
	}
	if registered < len(quotes) {
		registered = len(quotes)
	}

	sorted := make([]WeightedQuote, len(quotes))
	copy(sorted, quotes)
	sort.Slice(sorted, func(i, j int) bool {
		if c := sorted[i].Quote.Price.Cmp(sorted[j].Quote.Price); c != 0 {
			return c < 0
		}
		return sorted[i].Quote.SourceID < sorted[j].Quote.SourceID
	})

	ids := make([]string, len(sorted))
	for i, q := range sorted {
		ids[i] = q.Quote.SourceID
	}
	sort.Strings(ids)

	confidence, _ := asset.Quotient(decimal.NewFromInt(int64(len(sorted))), decimal.NewFromInt(int64(registered)))
	out := AggregatedPrice{
		Base:       base,
		Quote:      quote,
		Sources:    ids,
		ComputedAt: at,
	}

	if len(sorted) == 1 {
		out.Price = sorted[0].Quote.Price
		out.Method = MethodSingleSource
		if SingleSourceConfidenceCap.LessThan(confidence) {
			confidence = SingleSourceConfidenceCap
		}
		out.Confidence = confidence
		return out, nil
	}

	out.Price = weightedMedian(sorted)
	out.Method = MethodWeightedMedian
	out.Confidence = confidence
	return out, nil
}

// weightedMedian expects quotes sorted by price. When the cumulative weight
// lands exactly on half the total, the two straddling prices are averaged.
func weightedMedian(sorted []WeightedQuote) decimal.Decimal {
	total := decimal.Zero
	for _, q := range sorted {
		total = total.Add(q.weight())
	}

	two := decimal.NewFromInt(2)
	cum := decimal.Zero
	for i, q := range sorted {
		cum = cum.Add(q.weight())
		switch cum.Mul(two).Cmp(total) {
		case 0:
			if i+1 < len(sorted) {
				return q.Quote.Price.Add(sorted[i+1].Quote.Price).Div(two)
			}
			return q.Quote.Price
		case 1:
			return q.Quote.Price
		}
	}
	return sorted[len(sorted)-1].Quote.Price
}
