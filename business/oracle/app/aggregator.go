package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/stablecoin-engine/business/oracle/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

const (
	tracerName = "github.com/fd1az/stablecoin-engine/business/oracle"
	meterName  = "github.com/fd1az/stablecoin-engine/business/oracle"

	// DefaultMaxAge is the staleness bound for sources registered without one.
	DefaultMaxAge        = 300 * time.Second
	defaultSourceTimeout = 2 * time.Second
)

// Config configures an Aggregator.
type Config struct {
	MaxAge        time.Duration
	SourceTimeout time.Duration
	// HistoryDepth bounds the recorded quotes per source and pair.
	HistoryDepth int
}

type registration struct {
	source Source
	maxAge time.Duration
}

type aggregatorMetrics struct {
	aggregations   metric.Int64Counter
	sourceFailures metric.Int64Counter
	sourceLatency  metric.Float64Histogram
}

// Aggregator combines quotes from every registered source into one price.
type Aggregator struct {
	cfg      Config
	registry *asset.Registry
	history  *history
	logger   logger.LoggerInterface
	tracer   trace.Tracer
	metrics  *aggregatorMetrics
	now      func() time.Time

	mu      sync.RWMutex
	sources []registration
}

// NewAggregator creates an aggregator with no sources.
func NewAggregator(cfg Config, registry *asset.Registry, log logger.LoggerInterface) (*Aggregator, error) {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}

	a := &Aggregator{
		cfg:      cfg,
		registry: registry,
		history:  newHistory(cfg.HistoryDepth),
		logger:   log,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return a, nil
}

func (a *Aggregator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &aggregatorMetrics{}

	a.metrics.aggregations, err = meter.Int64Counter(
		"oracle_aggregations_total",
		metric.WithDescription("Aggregations by outcome"),
	)
	if err != nil {
		return err
	}

	a.metrics.sourceFailures, err = meter.Int64Counter(
		"oracle_source_failures_total",
		metric.WithDescription("Source quotes dropped as failed or stale"),
	)
	if err != nil {
		return err
	}

	a.metrics.sourceLatency, err = meter.Float64Histogram(
		"oracle_source_latency_ms",
		metric.WithDescription("Source quote latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// Register adds a source. maxAge <= 0 uses the aggregator default.
func (a *Aggregator) Register(src Source, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = a.cfg.MaxAge
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.sources {
		if r.source.ID() == src.ID() {
			return apperror.New(apperror.CodeConfigurationError,
				apperror.WithContext("duplicate oracle source "+src.ID()))
		}
	}
	a.sources = append(a.sources, registration{source: src, maxAge: maxAge})
	return nil
}

func (a *Aggregator) snapshot() []registration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]registration, len(a.sources))
	copy(out, a.sources)
	return out
}

type sourceResult struct {
	reg   registration
	quote domain.PriceQuote
	err   error
}

// Aggregate queries every source concurrently and combines the fresh quotes.
// Source failures are logged and counted, never returned. A source that does
// not list the pair counts against confidence like any other failure.
func (a *Aggregator) Aggregate(ctx context.Context, base, quote asset.Code) (domain.AggregatedPrice, error) {
	base, quote = base.Normalize(), quote.Normalize()
	now := a.now()
	if base == quote {
		return domain.Identity(base, now), nil
	}

	ctx, span := a.tracer.Start(ctx, "oracle.aggregate",
		trace.WithAttributes(attribute.String("pair", domain.PairKey(base, quote))))
	defer span.End()

	regs := a.snapshot()
	results := a.fanOut(ctx, regs, base, quote)

	now = a.now()
	var fresh []domain.WeightedQuote
	for _, r := range results {
		if r.err != nil {
			a.sourceFailed(ctx, r.reg.source.ID(), base, quote, r.err)
			continue
		}
		if r.quote.IsStale(now, r.reg.maxAge) {
			a.sourceFailed(ctx, r.reg.source.ID(), base, quote,
				apperror.New(apperror.CodeStaleQuote, apperror.WithContext(r.quote.ObservedAt.String())))
			continue
		}
		a.history.record(r.quote)
		fresh = append(fresh, domain.WeightedQuote{Quote: r.quote, Priority: r.reg.source.Priority()})
	}

	return a.combine(ctx, base, quote, fresh, len(regs), now)
}

// fanOut returns once every source answered or the source timeout elapsed.
// Sources still running past the deadline count as failed.
func (a *Aggregator) fanOut(ctx context.Context, regs []registration, base, quote asset.Code) []sourceResult {
	qctx, cancel := context.WithTimeout(ctx, a.cfg.SourceTimeout)
	defer cancel()

	ch := make(chan sourceResult, len(regs))
	pending := make(map[string]registration, len(regs))
	for _, reg := range regs {
		if !reg.source.IsHealthy() {
			ch <- sourceResult{reg: reg, err: apperror.New(apperror.CodeSourceUnavailable,
				apperror.WithContext(reg.source.ID()+" unhealthy"))}
			continue
		}
		pending[reg.source.ID()] = reg
		go func(reg registration) {
			start := time.Now()
			q, err := reg.source.Quote(qctx, base, quote)
			a.metrics.sourceLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
				metric.WithAttributes(attribute.String("source", reg.source.ID())))
			if err == nil {
				err = q.Validate()
			}
			if err == nil && (q.Base.Normalize() != base || q.Quote.Normalize() != quote) {
				err = apperror.New(apperror.CodeInvalidQuote,
					apperror.WithContext(reg.source.ID()+" answered "+q.Pair()))
			}
			ch <- sourceResult{reg: reg, quote: q, err: err}
		}(reg)
	}

	results := make([]sourceResult, 0, len(regs))
	for len(results) < len(regs) {
		select {
		case r := <-ch:
			delete(pending, r.reg.source.ID())
			results = append(results, r)
		case <-qctx.Done():
			for _, reg := range pending {
				results = append(results, sourceResult{reg: reg, err: apperror.Wrap(qctx.Err(),
					apperror.CodeServiceTimeout, reg.source.ID())})
			}
			return results
		}
	}
	return results
}

// AggregateAt aggregates the quotes each source had observed at or before at.
func (a *Aggregator) AggregateAt(ctx context.Context, base, quote asset.Code, at time.Time) (domain.AggregatedPrice, error) {
	base, quote = base.Normalize(), quote.Normalize()
	if base == quote {
		return domain.Identity(base, at), nil
	}

	regs := a.snapshot()
	pair := domain.PairKey(base, quote)

	var fresh []domain.WeightedQuote
	for _, reg := range regs {
		q, ok := a.quoteAt(ctx, reg.source, base, quote, pair, at)
		if !ok || q.ObservedAt.After(at) || q.IsStale(at, reg.maxAge) {
			continue
		}
		fresh = append(fresh, domain.WeightedQuote{Quote: q, Priority: reg.source.Priority()})
	}
	return a.combine(ctx, base, quote, fresh, len(regs), at)
}

func (a *Aggregator) quoteAt(ctx context.Context, src Source, base, quote asset.Code, pair string, at time.Time) (domain.PriceQuote, bool) {
	if hs, ok := src.(HistoricalSource); ok {
		qctx, cancel := context.WithTimeout(ctx, a.cfg.SourceTimeout)
		defer cancel()
		q, err := hs.QuoteAt(qctx, base, quote, at)
		if err == nil && q.Validate() == nil {
			return q, true
		}
	}
	return a.history.at(src.ID(), pair, at)
}

func (a *Aggregator) combine(ctx context.Context, base, quote asset.Code, fresh []domain.WeightedQuote, registered int, at time.Time) (domain.AggregatedPrice, error) {
	agg, err := domain.Aggregate(base, quote, fresh, registered, at)
	if err != nil {
		a.metrics.aggregations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "no_source")))
		a.logger.Warn(ctx, "no healthy price source", "pair", domain.PairKey(base, quote), "registered", registered)
		return domain.AggregatedPrice{}, err
	}
	a.metrics.aggregations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(agg.Method))))
	return agg, nil
}

func (a *Aggregator) sourceFailed(ctx context.Context, id string, base, quote asset.Code, err error) {
	a.metrics.sourceFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", id),
		attribute.String("code", string(apperror.GetCode(err))),
	))
	a.logger.Debug(ctx, "price source dropped",
		"source", id,
		"pair", domain.PairKey(base, quote),
		"error", err,
	)
}

// Price returns the aggregated price as an asset.Price. When the pair has no
// direct quotes the inverse pair is tried.
func (a *Aggregator) Price(ctx context.Context, base, quote asset.Code) (asset.Price, error) {
	b, err := a.registry.Lookup(base)
	if err != nil {
		return asset.Price{}, apperror.New(apperror.CodeValidationError, apperror.WithCause(err))
	}
	q, err := a.registry.Lookup(quote)
	if err != nil {
		return asset.Price{}, apperror.New(apperror.CodeValidationError, apperror.WithCause(err))
	}

	agg, err := a.Aggregate(ctx, base, quote)
	if err == nil {
		return asset.NewPrice(b, q, agg.Price, agg.ComputedAt)
	}
	if apperror.GetCode(err) != apperror.CodeNoHealthySource {
		return asset.Price{}, err
	}

	inv, invErr := a.Aggregate(ctx, quote, base)
	if invErr != nil {
		return asset.Price{}, err
	}
	rate := decimal.NewFromInt(1).DivRound(inv.Price, asset.PricePrecision)
	return asset.NewPrice(b, q, rate, inv.ComputedAt)
}

// SourceStatus is the health view of one source.
type SourceStatus struct {
	ID       string        `json:"id"`
	Priority int           `json:"priority"`
	MaxAge   time.Duration `json:"max_age"`
	Healthy  bool          `json:"healthy"`
}

// Sources lists every registered source with its current health.
func (a *Aggregator) Sources() []SourceStatus {
	regs := a.snapshot()
	out := make([]SourceStatus, len(regs))
	for i, r := range regs {
		out[i] = SourceStatus{
			ID:       r.source.ID(),
			Priority: r.source.Priority(),
			MaxAge:   r.maxAge,
			Healthy:  r.source.IsHealthy(),
		}
	}
	return out
}

// HealthCheck fails when no registered source is healthy.
func (a *Aggregator) HealthCheck(_ context.Context) error {
	for _, s := range a.Sources() {
		if s.Healthy {
			return nil
		}
	}
	return apperror.New(apperror.CodeNoHealthySource)
}
