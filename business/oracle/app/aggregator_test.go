package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/stablecoin-engine/business/oracle/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

// fakeSource answers with a fixed price observed age ago.
type fakeSource struct {
	id       string
	priority int
	price    string
	age      time.Duration
	err      error
	delay    time.Duration
	down     bool
	now      func() time.Time
	calls    atomic.Int32
}

func (f *fakeSource) ID() string      { return f.id }
func (f *fakeSource) Priority() int   { return f.priority }
func (f *fakeSource) IsHealthy() bool { return !f.down }

func (f *fakeSource) Quote(ctx context.Context, base, quote asset.Code) (domain.PriceQuote, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.PriceQuote{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.PriceQuote{}, f.err
	}
	return domain.PriceQuote{
		Base: base, Quote: quote,
		Price:      decimal.RequireFromString(f.price),
		SourceID:   f.id,
		ObservedAt: f.now().Add(-f.age),
	}, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAggregator(t *testing.T, cfg Config, sources ...*fakeSource) *Aggregator {
	t.Helper()
	a, err := NewAggregator(cfg, asset.DefaultRegistry(), &mockLogger{})
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	a.now = func() time.Time { return testNow }
	for _, s := range sources {
		s.now = a.now
		if err := a.Register(s, 0); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return a
}

func TestAggregator_Aggregate(t *testing.T) {
	tests := []struct {
		name           string
		sources        []*fakeSource
		wantErr        apperror.Code
		wantPrice      string
		wantMethod     domain.Method
		wantConfidence string
		wantSources    []string
	}{
		{
			name: "all_fresh",
			sources: []*fakeSource{
				{id: "a", priority: 1, price: "2000"},
				{id: "b", priority: 1, price: "2002"},
				{id: "c", priority: 2, price: "2100"},
			},
			wantPrice:      "2002",
			wantMethod:     domain.MethodWeightedMedian,
			wantConfidence: "1",
			wantSources:    []string{"a", "b", "c"},
		},
		{
			name: "stale_and_failing_dropped",
			sources: []*fakeSource{
				{id: "a", priority: 1, price: "2000"},
				{id: "b", priority: 1, price: "1", age: 301 * time.Second},
				{id: "c", priority: 1, err: errors.New("connection refused")},
				{id: "d", priority: 1, price: "2010"},
			},
			wantPrice:      "2005",
			wantMethod:     domain.MethodWeightedMedian,
			wantConfidence: "0.5",
			wantSources:    []string{"a", "d"},
		},
		{
			name: "single_survivor",
			sources: []*fakeSource{
				{id: "a", priority: 1, price: "2000"},
				{id: "b", priority: 1, down: true, price: "3000"},
			},
			wantPrice:      "2000",
			wantMethod:     domain.MethodSingleSource,
			wantConfidence: "0.5",
			wantSources:    []string{"a"},
		},
		{
			name: "invalid_quote_dropped",
			sources: []*fakeSource{
				{id: "a", priority: 1, price: "0"},
				{id: "b", priority: 1, price: "2000"},
			},
			wantPrice:      "2000",
			wantMethod:     domain.MethodSingleSource,
			wantConfidence: "0.5",
			wantSources:    []string{"b"},
		},
		{
			name: "sources_without_the_pair_lower_confidence",
			sources: []*fakeSource{
				{id: "a", priority: 1, price: "2000"},
				{id: "b", priority: 1, price: "2004"},
				{id: "c", priority: 1, err: apperror.New(apperror.CodeNotFound, apperror.WithContext("pair not listed"))},
				{id: "d", priority: 1, err: apperror.New(apperror.CodeNotFound, apperror.WithContext("pair not listed"))},
			},
			wantPrice:      "2002",
			wantMethod:     domain.MethodWeightedMedian,
			wantConfidence: "0.5",
			wantSources:    []string{"a", "b"},
		},
		{
			name: "every_source_unavailable",
			sources: []*fakeSource{
				{id: "a", priority: 1, err: errors.New("boom")},
				{id: "b", priority: 2, price: "2000", age: time.Hour},
			},
			wantErr: apperror.CodeNoHealthySource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAggregator(t, Config{}, tt.sources...)
			got, err := a.Aggregate(context.Background(), "ETH", "USD")
			if tt.wantErr != "" {
				if apperror.GetCode(err) != tt.wantErr {
					t.Fatalf("err = %v, want %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			if !got.Price.Equal(decimal.RequireFromString(tt.wantPrice)) {
				t.Errorf("price = %s, want %s", got.Price, tt.wantPrice)
			}
			if got.Method != tt.wantMethod {
				t.Errorf("method = %s, want %s", got.Method, tt.wantMethod)
			}
			if got.Confidence.String() != tt.wantConfidence {
				t.Errorf("confidence = %s, want %s", got.Confidence, tt.wantConfidence)
			}
			if len(got.Sources) != len(tt.wantSources) {
				t.Fatalf("sources = %v, want %v", got.Sources, tt.wantSources)
			}
			for i := range got.Sources {
				if got.Sources[i] != tt.wantSources[i] {
					t.Errorf("sources = %v, want %v", got.Sources, tt.wantSources)
				}
			}
		})
	}
}

func TestAggregator_SlowSourceTimesOut(t *testing.T) {
	a := newTestAggregator(t, Config{SourceTimeout: 50 * time.Millisecond},
		&fakeSource{id: "fast", priority: 1, price: "2000"},
		&fakeSource{id: "slow", priority: 1, price: "9999", delay: 5 * time.Second},
	)

	start := time.Now()
	got, err := a.Aggregate(context.Background(), "ETH", "USD")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("aggregation blocked for %v", elapsed)
	}
	if got.Method != domain.MethodSingleSource || !got.Price.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("got %s via %s", got.Price, got.Method)
	}
}

func TestAggregator_PerSourceMaxAge(t *testing.T) {
	a := newTestAggregator(t, Config{})
	lenient := &fakeSource{id: "lenient", priority: 1, price: "2000", age: 10 * time.Minute, now: a.now}
	strict := &fakeSource{id: "strict", priority: 1, price: "2010", age: 10 * time.Second, now: a.now}
	if err := a.Register(lenient, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := a.Register(strict, 5*time.Second); err != nil {
		t.Fatal(err)
	}

	got, err := a.Aggregate(context.Background(), "ETH", "USD")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(got.Sources) != 1 || got.Sources[0] != "lenient" {
		t.Errorf("sources = %v, want [lenient]", got.Sources)
	}
}

func TestAggregator_Identity(t *testing.T) {
	src := &fakeSource{id: "a", priority: 1, price: "2"}
	a := newTestAggregator(t, Config{}, src)

	got, err := a.Aggregate(context.Background(), "usd", "USD")
	if err != nil {
		t.Fatal(err)
	}
	if got.Method != domain.MethodIdentity || !got.Price.Equal(decimal.NewFromInt(1)) {
		t.Errorf("got %s via %s", got.Price, got.Method)
	}
	if src.calls.Load() != 0 {
		t.Error("identity must not query sources")
	}
}

func TestAggregator_AggregateAt(t *testing.T) {
	a := newTestAggregator(t, Config{})
	src := &fakeSource{id: "a", priority: 1, price: "2000", now: a.now}
	if err := a.Register(src, 0); err != nil {
		t.Fatal(err)
	}
	other := &fakeSource{id: "b", priority: 1, price: "2100", now: a.now}
	if err := a.Register(other, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Aggregate(context.Background(), "ETH", "USD"); err != nil {
		t.Fatal(err)
	}

	// Later, "a" moves and "b" disappears.
	first := testNow
	testLater := testNow.Add(time.Minute)
	a.now = func() time.Time { return testLater }
	src.now = a.now
	src.price = "1500"
	other.err = errors.New("gone")
	if _, err := a.Aggregate(context.Background(), "ETH", "USD"); err != nil {
		t.Fatal(err)
	}

	past, err := a.AggregateAt(context.Background(), "ETH", "USD", first.Add(time.Second))
	if err != nil {
		t.Fatalf("AggregateAt: %v", err)
	}
	if !past.Price.Equal(decimal.NewFromInt(2050)) || past.Method != domain.MethodWeightedMedian {
		t.Errorf("past = %s via %s, want 2050 weighted median", past.Price, past.Method)
	}

	latest, err := a.AggregateAt(context.Background(), "ETH", "USD", testLater)
	if err != nil {
		t.Fatalf("AggregateAt: %v", err)
	}
	// "b" last observed a minute ago, still within max age.
	if !latest.Price.Equal(decimal.NewFromInt(1800)) {
		t.Errorf("latest = %s, want 1800", latest.Price)
	}

	if _, err := a.AggregateAt(context.Background(), "ETH", "USD", first.Add(-time.Second)); apperror.GetCode(err) != apperror.CodeNoHealthySource {
		t.Errorf("before any observation: err = %v", err)
	}
}

func TestAggregator_PriceInverse(t *testing.T) {
	a := newTestAggregator(t, Config{})
	usds := &inverseOnly{fakeSource: fakeSource{id: "peg", priority: 1, price: "0.5", now: a.now}}
	if err := a.Register(usds, 0); err != nil {
		t.Fatal(err)
	}

	p, err := a.Price(context.Background(), "USDS", "USD")
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !p.Rate().Equal(decimal.NewFromInt(2)) {
		t.Errorf("rate = %s, want 2", p.Rate())
	}
}

// inverseOnly only knows USD/USDS.
type inverseOnly struct{ fakeSource }

func (s *inverseOnly) Quote(ctx context.Context, base, quote asset.Code) (domain.PriceQuote, error) {
	if base != "USD" || quote != "USDS" {
		return domain.PriceQuote{}, apperror.New(apperror.CodeSourceUnavailable)
	}
	return s.fakeSource.Quote(ctx, base, quote)
}

func TestAggregator_RegisterDuplicate(t *testing.T) {
	a := newTestAggregator(t, Config{}, &fakeSource{id: "a", priority: 1, price: "1"})
	if err := a.Register(&fakeSource{id: "a", priority: 2}, 0); apperror.GetCode(err) != apperror.CodeConfigurationError {
		t.Errorf("err = %v, want ConfigurationError", err)
	}
}

func TestAggregator_HealthCheck(t *testing.T) {
	down := &fakeSource{id: "a", priority: 1, down: true}
	a := newTestAggregator(t, Config{}, down)
	if err := a.HealthCheck(context.Background()); err == nil {
		t.Error("expected failure with every source down")
	}
	down.down = false
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
