package stream

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// StreamEvent is the combined-stream wrapper.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// WSResponse acknowledges a control request.
type WSResponse struct {
	Result json.RawMessage `json:"result"`
	ID     int64           `json:"id"`
}

// BookTickerEvent is a best bid/ask update.
// Stream: <symbol>@bookTicker
type BookTickerEvent struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// Mid returns (bid+ask)/2. A one-sided book yields the side present.
func (e *BookTickerEvent) Mid() (decimal.Decimal, error) {
	bid, err := decimal.NewFromString(e.BidPrice)
	if err != nil {
		return decimal.Zero, err
	}
	ask, err := decimal.NewFromString(e.AskPrice)
	if err != nil {
		return decimal.Zero, err
	}
	switch {
	case bid.IsZero():
		return ask, nil
	case ask.IsZero():
		return bid, nil
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), nil
}

// BookTickerStream returns the stream name for a symbol.
func BookTickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@bookTicker"
}
