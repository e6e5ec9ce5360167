// Package app runs liquidation auctions against a bid book.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/stablecoin-engine/business/auction/domain"
	ledger "github.com/fd1az/stablecoin-engine/business/ledger/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

const meterName = "github.com/fd1az/stablecoin-engine/business/auction"

// BidBook collects liquidator bids for a lot.
type BidBook interface {
	Bids(ctx context.Context, lot domain.Lot) ([]domain.Bid, error)
	Clear(ctx context.Context, positionID string) error
}

// Funds reports bidder balances for attestation.
type Funds interface {
	Balance(ctx context.Context, account string, code asset.Code) (ledger.Balance, error)
}

// Config configures an Auctioneer.
type Config struct {
	Bonus asset.Ratio
	// Cooldown is how long a lot that found no winner waits before re-listing.
	Cooldown time.Duration
}

type auctionMetrics struct {
	runs metric.Int64Counter
}

// Auctioneer gathers and attests bids, then runs the auction rules.
type Auctioneer struct {
	cfg     Config
	book    BidBook
	funds   Funds
	logger  logger.LoggerInterface
	metrics *auctionMetrics
	now     func() time.Time

	mu     sync.Mutex
	failed map[string]time.Time
}

// NewAuctioneer creates an Auctioneer. funds may be nil, in which case the
// bids' own attestation is trusted.
func NewAuctioneer(cfg Config, book BidBook, funds Funds, log logger.LoggerInterface) (*Auctioneer, error) {
	if err := domain.ValidateBonus(cfg.Bonus); err != nil {
		return nil, err
	}
	a := &Auctioneer{
		cfg:    cfg,
		book:   book,
		funds:  funds,
		logger: log,
		now:    time.Now,
		failed: make(map[string]time.Time),
	}
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return a, nil
}

func (a *Auctioneer) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	a.metrics = &auctionMetrics{}
	a.metrics.runs, err = meter.Int64Counter(
		"liquidation_auctions_total",
		metric.WithDescription("Liquidation auctions run, by outcome"),
	)
	return err
}

// Bonus is the configured liquidation bonus.
func (a *Auctioneer) Bonus() asset.Ratio { return a.cfg.Bonus }

// CoolingDown reports whether the position failed an auction within the
// cooldown window.
func (a *Auctioneer) CoolingDown(positionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	at, ok := a.failed[positionID]
	return ok && a.now().Sub(at) < a.cfg.Cooldown
}

// RunAuction auctions one lot. A lot still cooling down fails without
// collecting bids.
func (a *Auctioneer) RunAuction(ctx context.Context, lot domain.Lot, price asset.Price) (domain.Result, error) {
	if a.CoolingDown(lot.PositionID) {
		a.record(ctx, "cooling_down")
		return domain.Result{PositionID: lot.PositionID, ExcessCollateral: lot.Collateral},
			apperror.New(apperror.CodeAuctionFailed,
				apperror.WithContext(fmt.Sprintf("position %s is cooling down", lot.PositionID)))
	}

	bids, err := a.book.Bids(ctx, lot)
	if err != nil {
		return domain.Result{}, err
	}
	bids = a.attest(ctx, bids)

	result, err := domain.RunAuction(lot, price, bids, a.cfg.Bonus)
	if err != nil {
		if apperror.GetCode(err) == apperror.CodeAuctionFailed {
			a.mu.Lock()
			a.failed[lot.PositionID] = a.now()
			a.mu.Unlock()
			a.record(ctx, "no_winner")
			a.logger.Warn(ctx, "liquidation auction found no winner",
				"position_id", lot.PositionID,
				"debt_value", lot.DebtValue.String(),
				"bids", len(bids))
		}
		return result, err
	}

	a.mu.Lock()
	delete(a.failed, lot.PositionID)
	a.mu.Unlock()
	if err := a.book.Clear(ctx, lot.PositionID); err != nil {
		a.logger.Warn(ctx, "failed to clear bids", "position_id", lot.PositionID, "error", err)
	}
	a.record(ctx, "won")
	a.logger.Info(ctx, "liquidation auction won",
		"position_id", lot.PositionID,
		"winner", result.WinnerID,
		"bid", result.BidAmount.String(),
		"awarded", result.CollateralAwarded.String(),
		"excess", result.ExcessCollateral.String())
	return result, nil
}

// attest marks bids whose bidder holds at least the bid amount.
func (a *Auctioneer) attest(ctx context.Context, bids []domain.Bid) []domain.Bid {
	if a.funds == nil {
		return bids
	}
	out := make([]domain.Bid, len(bids))
	for i, b := range bids {
		bal, err := a.funds.Balance(ctx, b.BidderID, b.Amount.Code())
		b.FundsAttested = err == nil && !bal.Available.LessThan(b.Amount)
		out[i] = b
	}
	return out
}

func (a *Auctioneer) record(ctx context.Context, outcome string) {
	a.metrics.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
