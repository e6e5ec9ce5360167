// Package stream provides a price source fed by a Binance-style combined
// bookTicker websocket. It keeps the last mid price per symbol.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/stablecoin-engine/business/oracle/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/logger"
	"github.com/fd1az/stablecoin-engine/internal/wsconn"
)

const meterName = "github.com/fd1az/stablecoin-engine/business/oracle/infra/stream"

// Config holds configuration for a stream source.
type Config struct {
	ID       string
	Priority int
	// BaseURL is the websocket endpoint; "/stream?streams=..." is appended.
	BaseURL string
	// Symbols maps "BASE/QUOTE" to the venue symbol.
	Symbols     map[string]string
	ReadTimeout time.Duration
}

type tick struct {
	mid        decimal.Decimal
	receivedAt time.Time
}

type sourceMetrics struct {
	messages    metric.Int64Counter
	parseErrors metric.Int64Counter
}

// Source serves the last mid price received for each symbol.
type Source struct {
	cfg     Config
	logger  logger.LoggerInterface
	metrics *sourceMetrics
	now     func() time.Time

	conn *wsconn.Client

	mu    sync.RWMutex
	ticks map[string]tick
}

// New creates a source. Call Connect to start streaming.
func New(cfg Config, log logger.LoggerInterface) (*Source, error) {
	if len(cfg.Symbols) == 0 {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(cfg.ID+": no symbols configured"))
	}
	symbols := make(map[string]string, len(cfg.Symbols))
	for pair, sym := range cfg.Symbols {
		symbols[domain.NormalizePair(pair)] = strings.ToUpper(sym)
	}
	cfg.Symbols = symbols

	wsURL, err := buildStreamURL(cfg.BaseURL, cfg.Symbols)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithCause(err))
	}
	wsCfg := wsconn.DefaultConfig(wsURL, cfg.ID)
	if cfg.ReadTimeout > 0 {
		wsCfg.ReadTimeout = cfg.ReadTimeout
	}
	conn, err := wsconn.New(wsCfg)
	if err != nil {
		return nil, err
	}

	s := &Source{
		cfg:    cfg,
		logger: log,
		now:    time.Now,
		conn:   conn,
		ticks:  make(map[string]tick),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	conn.OnMessage(s.handleMessage)
	conn.OnStateChange(func(state wsconn.State, err error) {
		if err != nil {
			s.logger.Warn(context.Background(), "price stream state changed",
				"source", cfg.ID, "state", string(state), "error", err)
			return
		}
		s.logger.Info(context.Background(), "price stream state changed",
			"source", cfg.ID, "state", string(state))
	})
	return s, nil
}

func (s *Source) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &sourceMetrics{}

	s.metrics.messages, err = meter.Int64Counter(
		"oracle_stream_messages_total",
		metric.WithDescription("Stream messages received"),
	)
	if err != nil {
		return err
	}

	s.metrics.parseErrors, err = meter.Int64Counter(
		"oracle_stream_parse_errors_total",
		metric.WithDescription("Stream messages that failed to parse"),
	)
	return err
}

// buildStreamURL constructs the combined streams URL.
func buildStreamURL(base string, symbols map[string]string) (string, error) {
	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		streams = append(streams, BookTickerStream(sym))
	}
	sort.Strings(streams)

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// Connect dials with retry. The connection redials on its own afterwards.
func (s *Source) Connect(ctx context.Context) error {
	return s.conn.ConnectWithRetry(ctx)
}

// Close stops the stream.
func (s *Source) Close() error {
	return s.conn.Close()
}

func (s *Source) ID() string { return s.cfg.ID }

func (s *Source) Priority() int { return s.cfg.Priority }

// IsHealthy is true while the socket is connected.
func (s *Source) IsHealthy() bool { return s.conn.IsConnected() }

// Quote returns the last mid price. Its ObservedAt is the receive time, so
// the aggregator's staleness bound applies to silent streams.
func (s *Source) Quote(_ context.Context, base, quote asset.Code) (domain.PriceQuote, error) {
	pair := domain.PairKey(base, quote)
	symbol, ok := s.cfg.Symbols[pair]
	if !ok {
		return domain.PriceQuote{}, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithContext(s.cfg.ID+": no symbol for "+pair), apperror.WithRetryable(false))
	}

	s.mu.RLock()
	t, ok := s.ticks[symbol]
	s.mu.RUnlock()
	if !ok {
		return domain.PriceQuote{}, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithContext(s.cfg.ID+": no tick yet for "+symbol))
	}
	return domain.PriceQuote{
		Base:       base.Normalize(),
		Quote:      quote.Normalize(),
		Price:      t.mid,
		SourceID:   s.cfg.ID,
		ObservedAt: t.receivedAt,
	}, nil
}

// handleMessage processes incoming websocket frames.
func (s *Source) handleMessage(ctx context.Context, data []byte) {
	s.metrics.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("source", s.cfg.ID)))

	var event StreamEvent
	if err := json.Unmarshal(data, &event); err != nil || event.Stream == "" {
		var resp WSResponse
		if json.Unmarshal(data, &resp) == nil {
			return
		}
		s.parseFailed(ctx, data, err)
		return
	}
	if !strings.HasSuffix(event.Stream, "@bookTicker") {
		return
	}

	var ticker BookTickerEvent
	if err := json.Unmarshal(event.Data, &ticker); err != nil {
		s.parseFailed(ctx, event.Data, err)
		return
	}
	mid, err := ticker.Mid()
	if err != nil || !mid.IsPositive() {
		s.parseFailed(ctx, event.Data, err)
		return
	}

	s.mu.Lock()
	s.ticks[strings.ToUpper(ticker.Symbol)] = tick{mid: mid, receivedAt: s.now()}
	s.mu.Unlock()
}

func (s *Source) parseFailed(ctx context.Context, data []byte, err error) {
	s.metrics.parseErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("source", s.cfg.ID)))
	s.logger.Debug(ctx, "failed to parse stream message",
		"source", s.cfg.ID,
		"error", err,
		"data", string(data[:min(len(data), 200)]))
}
