package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	position "github.com/fd1az/stablecoin-engine/business/position/domain"
	risk "github.com/fd1az/stablecoin-engine/business/risk/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

// Sweep outcomes per position.
const (
	OutcomeNoAction    = "no_action"
	OutcomeMarginCall  = "margin_call"
	OutcomeLiquidated  = "liquidated"
	OutcomeSettled     = "settled"
	OutcomeCoolingDown = "cooling_down"
	OutcomeClosed      = "closed"
	OutcomeFailed      = "failed"
)

// SweeperConfig configures the sweep loop.
type SweeperConfig struct {
	Interval time.Duration
	// Workers bounds positions handled at once.
	Workers int
}

// SweepReport counts one sweep's outcomes. Errors holds the failures keyed
// by position id.
type SweepReport struct {
	Checked  int
	Outcomes map[string]int
	Errors   map[string]error
}

func (r *SweepReport) add(id, outcome string, err error) {
	r.Checked++
	r.Outcomes[outcome]++
	if err != nil {
		r.Errors[id] = err
	}
}

// Sweeper revalues every open position, issues margin calls, liquidates
// insolvent positions and resumes unfinished settlements.
type Sweeper struct {
	cfg       SweeperConfig
	positions Positions
	valuer    Valuer
	auctions  Auctions
	commands  *Commands
	logger    logger.LoggerInterface
	swept     metric.Int64Counter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a Sweeper.
func NewSweeper(cfg SweeperConfig, positions Positions, valuer Valuer, auctions Auctions, commands *Commands, log logger.LoggerInterface) (*Sweeper, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	swept, err := otel.Meter(meterName).Int64Counter(
		"sweeper_positions_total",
		metric.WithDescription("Positions handled by the liquidation sweeper, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return &Sweeper{
		cfg:       cfg,
		positions: positions,
		valuer:    valuer,
		auctions:  auctions,
		commands:  commands,
		logger:    log,
		swept:     swept,
	}, nil
}

// Start runs a sweep every interval until Stop or ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return apperror.New(apperror.CodeInvalidState, apperror.WithContext("sweeper already running"))
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.logger.Info(ctx, "starting liquidation sweeper", "interval", s.cfg.Interval, "workers", s.cfg.Workers)
	go s.run(ctx, s.done)
	return nil
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sweeper stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			report, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Warn(ctx, "sweep failed", "error", err)
				continue
			}
			if len(report.Errors) > 0 {
				s.logger.Warn(ctx, "sweep finished with failures",
					"checked", report.Checked, "failed", len(report.Errors))
			}
		}
	}
}

// Stop halts the loop and waits for the current sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep handles every position once. A failing position never stops the
// others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	ids, err := s.positions.IDs(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Outcomes: make(map[string]int), Errors: make(map[string]error)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	for _, id := range ids {
		g.Go(func() error {
			outcome, err := s.sweepOne(ctx, id)
			s.swept.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
			mu.Lock()
			report.add(id, outcome, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Debug(ctx, "sweep finished", "checked", report.Checked, "outcomes", report.Outcomes)
	return report, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, id string) (string, error) {
	st, err := s.positions.Get(ctx, id)
	if err != nil {
		return OutcomeFailed, err
	}
	switch st.Status {
	case position.StatusClosed:
		return OutcomeClosed, nil
	case position.StatusLiquidating:
		if _, err := s.commands.Settle(ctx, id); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeSettled, nil
	}

	v, err := s.valuer.Valuation(ctx, st.CollateralAsset, st.Stablecoin)
	if err != nil {
		return OutcomeFailed, err
	}
	a, err := v.Assess(st.Collateral, st.Debt)
	if err != nil {
		return OutcomeFailed, err
	}

	switch a.Health {
	case risk.HealthLiquidation:
		if s.auctions.CoolingDown(id) {
			return OutcomeCoolingDown, nil
		}
		if _, err := s.commands.Liquidate(ctx, id); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeLiquidated, nil
	case risk.HealthMarginCall:
		if st.Status != position.StatusOpen {
			return OutcomeMarginCall, nil
		}
		if _, err := s.positions.MarginCall(ctx, id, st.Version); err != nil {
			return OutcomeFailed, err
		}
		s.logger.Info(ctx, "margin call issued", "position_id", id, "ratio", a.Ratio.String())
		return OutcomeMarginCall, nil
	default:
		return OutcomeNoAction, nil
	}
}
