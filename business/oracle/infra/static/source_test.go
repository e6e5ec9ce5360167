package static

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
)

func TestSource_QuoteAndShock(t *testing.T) {
	src, err := Parse("fixed", 3, map[string]string{"eth/usd": "2000", "USDS/USD": "1"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	q, err := src.Quote(context.Background(), "ETH", "USD")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !q.Price.Equal(decimal.NewFromInt(2000)) || q.SourceID != "fixed" {
		t.Errorf("quote = %+v", q)
	}

	src.Shock(decimal.RequireFromString("0.7"), "ETH")

	q, _ = src.Quote(context.Background(), "ETH", "USD")
	if !q.Price.Equal(decimal.NewFromInt(1400)) {
		t.Errorf("after shock = %s, want 1400", q.Price)
	}
	peg, _ := src.Quote(context.Background(), "USDS", "USD")
	if !peg.Price.Equal(decimal.NewFromInt(1)) {
		t.Errorf("peg moved to %s", peg.Price)
	}
}

func TestSource_UnknownPair(t *testing.T) {
	src := New("fixed", 1, nil)
	_, err := src.Quote(context.Background(), "ETH", "USD")
	if apperror.GetCode(err) != apperror.CodeSourceUnavailable {
		t.Errorf("err = %v", err)
	}
	if apperror.IsRetryable(err) {
		t.Error("a missing rate is not transient")
	}
}

func TestParse_BadRate(t *testing.T) {
	if _, err := Parse("fixed", 1, map[string]string{"ETH/USD": "abc"}); err == nil {
		t.Error("expected error for malformed rate")
	}
}
