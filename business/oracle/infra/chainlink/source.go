// Package chainlink reads prices from Chainlink aggregator contracts.
package chainlink

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/stablecoin-engine/business/oracle/app"
	"github.com/fd1az/stablecoin-engine/business/oracle/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/circuitbreaker"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

const tracerName = "chainlink"

var _ app.Source = (*Source)(nil)

// ContractCaller is the subset of ethclient.Client the source needs.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config holds configuration for a Chainlink source.
type Config struct {
	ID       string
	Priority int
	// Feeds maps "BASE/QUOTE" to the aggregator contract.
	Feeds map[string]common.Address
}

// Source reads latestRoundData from one aggregator per pair.
type Source struct {
	cfg    Config
	caller ContractCaller
	abi    abi.ABI
	cb     *circuitbreaker.CircuitBreaker[[]byte]
	logger logger.LoggerInterface
	tracer trace.Tracer

	mu       sync.Mutex
	decimals map[common.Address]int32
}

// New creates a Chainlink source.
func New(caller ContractCaller, cfg Config, log logger.LoggerInterface) (*Source, error) {
	parsed, err := abi.JSON(strings.NewReader(AggregatorV3ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator ABI: %w", err)
	}

	feeds := make(map[string]common.Address, len(cfg.Feeds))
	for pair, addr := range cfg.Feeds {
		feeds[domain.NormalizePair(pair)] = addr
	}
	cfg.Feeds = feeds

	return &Source{
		cfg:      cfg,
		caller:   caller,
		abi:      parsed,
		cb:       circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig(cfg.ID)),
		logger:   log,
		tracer:   otel.Tracer(tracerName),
		decimals: make(map[common.Address]int32),
	}, nil
}

func (s *Source) ID() string { return s.cfg.ID }

func (s *Source) Priority() int { return s.cfg.Priority }

// IsHealthy is false while the RPC breaker is open.
func (s *Source) IsHealthy() bool { return !s.cb.IsOpen() }

// Quote reads the latest round of the pair's aggregator.
func (s *Source) Quote(ctx context.Context, base, quote asset.Code) (domain.PriceQuote, error) {
	pair := domain.PairKey(base, quote)
	feed, ok := s.cfg.Feeds[pair]
	if !ok {
		return domain.PriceQuote{}, apperror.New(apperror.CodeSourceUnavailable,
			apperror.WithContext(s.cfg.ID+": no feed for "+pair), apperror.WithRetryable(false))
	}

	ctx, span := s.tracer.Start(ctx, "chainlink.latest_round",
		trace.WithAttributes(
			attribute.String("pair", pair),
			attribute.String("feed", feed.Hex()),
		),
	)
	defer span.End()

	dec, err := s.feedDecimals(ctx, feed)
	if err != nil {
		span.SetStatus(codes.Error, "decimals failed")
		return domain.PriceQuote{}, err
	}

	out, err := s.call(ctx, feed, "latestRoundData")
	if err != nil {
		span.SetStatus(codes.Error, "latestRoundData failed")
		return domain.PriceQuote{}, err
	}
	if len(out) < 5 {
		return domain.PriceQuote{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("%s: unexpected output length %d", s.cfg.ID, len(out))))
	}
	round := RoundData{
		RoundId:         out[0].(*big.Int),
		Answer:          out[1].(*big.Int),
		StartedAt:       out[2].(*big.Int),
		UpdatedAt:       out[3].(*big.Int),
		AnsweredInRound: out[4].(*big.Int),
	}
	if round.Answer.Sign() <= 0 {
		return domain.PriceQuote{}, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(fmt.Sprintf("%s: non-positive answer %s", s.cfg.ID, round.Answer)))
	}

	q := domain.PriceQuote{
		Base:       base.Normalize(),
		Quote:      quote.Normalize(),
		Price:      decimal.NewFromBigInt(round.Answer, -dec),
		SourceID:   s.cfg.ID,
		ObservedAt: time.Unix(round.UpdatedAt.Int64(), 0).UTC(),
	}

	span.SetAttributes(
		attribute.String("round_id", round.RoundId.String()),
		attribute.String("price", q.Price.String()),
	)
	span.SetStatus(codes.Ok, "round read")

	s.logger.Debug(ctx, "chainlink quote",
		"source", s.cfg.ID,
		"pair", pair,
		"round_id", round.RoundId.String(),
		"price", q.Price.String(),
		"updated_at", q.ObservedAt)

	return q, nil
}

func (s *Source) feedDecimals(ctx context.Context, feed common.Address) (int32, error) {
	s.mu.Lock()
	dec, ok := s.decimals[feed]
	s.mu.Unlock()
	if ok {
		return dec, nil
	}

	out, err := s.call(ctx, feed, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithContext(s.cfg.ID+": unexpected decimals output"))
	}
	dec = int32(out[0].(uint8))

	s.mu.Lock()
	s.decimals[feed] = dec
	s.mu.Unlock()
	return dec, nil
}

func (s *Source) call(ctx context.Context, feed common.Address, method string) ([]interface{}, error) {
	callData, err := s.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	result, err := s.cb.Execute(func() ([]byte, error) {
		return s.caller.CallContract(ctx, ethereum.CallMsg{
			To:   &feed,
			Data: callData,
		}, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s: %s on %s", s.cfg.ID, method, feed.Hex())),
			apperror.WithRetryable(true))
	}

	out, err := s.abi.Unpack(method, result)
	if err != nil {
		return nil, apperror.New(apperror.CodeInvalidQuote,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s: decode %s", s.cfg.ID, method)))
	}
	return out, nil
}
