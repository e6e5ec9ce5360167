// Package app runs position commands against the event store.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	auction "github.com/fd1az/stablecoin-engine/business/auction/domain"
	"github.com/fd1az/stablecoin-engine/business/position/domain"
	risk "github.com/fd1az/stablecoin-engine/business/risk/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/keylock"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

const meterName = "github.com/fd1az/stablecoin-engine/business/position"

// AnyVersion skips the optimistic version check. The append itself is still
// conditional on the version just loaded.
const AnyVersion int64 = -1

// Valuer prices a collateral/debt pair with its threshold.
type Valuer interface {
	Valuation(ctx context.Context, collateral, debt asset.Code) (risk.Valuation, error)
}

type serviceMetrics struct {
	commands metric.Int64Counter
}

// Service is the command side of the position aggregate. Commands on one
// position are serialized; different positions run in parallel.
type Service struct {
	repo    *Repository
	valuer  Valuer
	logger  logger.LoggerInterface
	metrics *serviceMetrics
	now     func() time.Time

	locks keylock.Locks
}

// NewService creates a Service.
func NewService(repo *Repository, valuer Valuer, log logger.LoggerInterface) (*Service, error) {
	s := &Service{
		repo:   repo,
		valuer: valuer,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
	meter := otel.Meter(meterName)
	commands, err := meter.Int64Counter(
		"position_commands_total",
		metric.WithDescription("Position commands, by command and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	s.metrics = &serviceMetrics{commands: commands}
	return s, nil
}

// Get returns the current state of a position.
func (s *Service) Get(ctx context.Context, id string) (domain.State, error) {
	state, err := s.repo.Load(ctx, id)
	if err != nil {
		return domain.State{}, err
	}
	if !state.Exists() {
		return domain.State{}, apperror.NotFound(apperror.CodePositionNotFound, id)
	}
	return state, nil
}

// History returns a position's events.
func (s *Service) History(ctx context.Context, id string) ([]domain.Event, error) {
	return s.repo.History(ctx, id)
}

// IDs lists every position.
func (s *Service) IDs(ctx context.Context) ([]string, error) {
	return s.repo.IDs(ctx)
}

// Assess values a position at current prices.
func (s *Service) Assess(ctx context.Context, id string) (domain.State, risk.Assessment, error) {
	state, err := s.Get(ctx, id)
	if err != nil {
		return domain.State{}, risk.Assessment{}, err
	}
	a, err := s.assess(ctx, state)
	return state, a, err
}

// Open mints debt against fresh collateral. An empty PositionID is assigned.
func (s *Service) Open(ctx context.Context, cmd domain.OpenPosition) (domain.State, error) {
	if cmd.PositionID == "" {
		cmd.PositionID = uuid.NewString()
	}
	return s.execute(ctx, "open", cmd.PositionID, AnyVersion, func(state domain.State) (domain.Event, error) {
		v, err := s.valuer.Valuation(ctx, cmd.Collateral.Code(), cmd.Mint.Code())
		if err != nil {
			return nil, err
		}
		return domain.Open(state, cmd, v, s.now())
	})
}

// AddCollateral tops up a position.
func (s *Service) AddCollateral(ctx context.Context, id string, expected int64, amount asset.Amount) (domain.State, error) {
	return s.execute(ctx, "add_collateral", id, expected, func(state domain.State) (domain.Event, error) {
		return domain.AddCollateral(state, amount, s.now())
	})
}

// CheckBurn validates a burn against the current state without writing it.
func (s *Service) CheckBurn(ctx context.Context, id string, amount, release asset.Amount) (domain.State, error) {
	state, err := s.Get(ctx, id)
	if err != nil {
		return domain.State{}, err
	}
	if _, err := s.decideBurn(ctx, state, amount, release); err != nil {
		return domain.State{}, err
	}
	return state, nil
}

// Burn repays debt and releases collateral.
func (s *Service) Burn(ctx context.Context, id string, expected int64, amount, release asset.Amount) (domain.State, error) {
	return s.execute(ctx, "burn", id, expected, func(state domain.State) (domain.Event, error) {
		return s.decideBurn(ctx, state, amount, release)
	})
}

// MarginCall issues a margin call if the position's current health calls
// for one.
func (s *Service) MarginCall(ctx context.Context, id string, expected int64) (domain.State, error) {
	return s.execute(ctx, "margin_call", id, expected, func(state domain.State) (domain.Event, error) {
		if err := s.exists(state, id); err != nil {
			return nil, err
		}
		a, err := s.assess(ctx, state)
		if err != nil {
			return nil, err
		}
		return domain.MarginCall(state, a, s.now())
	})
}

// Liquidate records a won auction. Health is re-assessed at current prices.
func (s *Service) Liquidate(ctx context.Context, id string, expected int64, result auction.Result) (domain.State, error) {
	return s.execute(ctx, "liquidate", id, expected, func(state domain.State) (domain.Event, error) {
		if err := s.exists(state, id); err != nil {
			return nil, err
		}
		a, err := s.assess(ctx, state)
		if err != nil {
			return nil, err
		}
		return domain.Liquidate(state, a, result, s.now())
	})
}

// SettleLiquidation closes a liquidating position.
func (s *Service) SettleLiquidation(ctx context.Context, id string, expected int64) (domain.State, error) {
	return s.execute(ctx, "settle_liquidation", id, expected, func(state domain.State) (domain.Event, error) {
		return domain.SettleLiquidation(state, s.now())
	})
}

func (s *Service) decideBurn(ctx context.Context, state domain.State, amount, release asset.Amount) (domain.Event, error) {
	if err := s.exists(state, state.ID); err != nil {
		return nil, err
	}
	// Only a partial repayment that releases collateral needs prices.
	var v risk.Valuation
	if remaining, err := state.Debt.Sub(amount); err == nil && remaining.IsPositive() && release.IsPositive() {
		v, err = s.valuer.Valuation(ctx, state.CollateralAsset, state.Stablecoin)
		if err != nil {
			return nil, err
		}
	}
	return domain.Burn(state, amount, release, v, s.now())
}

func (s *Service) assess(ctx context.Context, state domain.State) (risk.Assessment, error) {
	v, err := s.valuer.Valuation(ctx, state.CollateralAsset, state.Stablecoin)
	if err != nil {
		return risk.Assessment{}, err
	}
	a, err := v.Assess(state.Collateral, state.Debt)
	if err != nil {
		return risk.Assessment{}, apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err))
	}
	return a, nil
}

func (s *Service) exists(state domain.State, id string) error {
	if !state.Exists() {
		return apperror.NotFound(apperror.CodePositionNotFound, id)
	}
	return nil
}

// execute loads, checks the expected version, decides and appends under the
// position's lock.
func (s *Service) execute(ctx context.Context, command, id string, expected int64, decide func(domain.State) (domain.Event, error)) (domain.State, error) {
	if id == "" {
		return domain.State{}, apperror.Validation("position id is required")
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	state, err := s.repo.Load(ctx, id)
	if err != nil {
		s.record(ctx, command, "error")
		return domain.State{}, err
	}
	if expected != AnyVersion && state.Version != expected {
		s.record(ctx, command, "conflict")
		return domain.State{}, apperror.New(apperror.CodeConcurrentModification,
			apperror.WithContext(fmt.Sprintf("position %s: expected version %d, actual %d", id, expected, state.Version)))
	}

	e, err := decide(state)
	if err != nil {
		s.record(ctx, command, "rejected")
		s.logger.Debug(ctx, "position command rejected",
			"command", command, "position_id", id, "version", state.Version, "error", err)
		return domain.State{}, err
	}

	next, err := s.repo.Append(ctx, state, id, e)
	if err != nil {
		s.record(ctx, command, "error")
		return domain.State{}, err
	}
	s.record(ctx, command, "accepted")
	s.logger.Info(ctx, "position event appended",
		"position_id", id,
		"event", e.EventType(),
		"version", next.Version,
		"status", string(next.Status))
	return next, nil
}

func (s *Service) record(ctx context.Context, command, outcome string) {
	s.metrics.commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	))
}
