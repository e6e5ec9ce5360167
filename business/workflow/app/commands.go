package app

import (
	"context"

	"github.com/google/uuid"

	funding "github.com/fd1az/stablecoin-engine/business/funding/domain"
	position "github.com/fd1az/stablecoin-engine/business/position/domain"
	"github.com/fd1az/stablecoin-engine/business/workflow/domain"
	"github.com/fd1az/stablecoin-engine/internal/asset"
	"github.com/fd1az/stablecoin-engine/internal/logger"
)

// Runner executes a saga to a terminal result.
type Runner interface {
	Run(ctx context.Context, s domain.Saga) domain.Result
}

// Commands is the external command surface. Each command runs one saga;
// position sagas that lose a version race are rebuilt and rerun.
type Commands struct {
	runner    Runner
	sagas     *Sagas
	positions Positions
	funding   Funding
	attempts  int
	logger    logger.LoggerInterface
}

// NewCommands creates Commands. attempts bounds reruns after a concurrent
// modification and is at least one.
func NewCommands(runner Runner, sagas *Sagas, positions Positions, fundingSvc Funding, attempts int, log logger.LoggerInterface) *Commands {
	if attempts < 1 {
		attempts = 1
	}
	return &Commands{
		runner:    runner,
		sagas:     sagas,
		positions: positions,
		funding:   fundingSvc,
		attempts:  attempts,
		logger:    log,
	}
}

// OpenPosition locks collateral and mints stablecoin against it.
func (c *Commands) OpenPosition(ctx context.Context, owner string, collateral, mint asset.Amount) (position.State, error) {
	cmd := position.OpenPosition{
		PositionID: uuid.NewString(),
		Owner:      owner,
		Collateral: collateral,
		Mint:       mint,
	}
	if err := c.rerun(ctx, func() domain.Saga { return c.sagas.Mint(cmd) }); err != nil {
		return position.State{}, err
	}
	return c.positions.Get(ctx, cmd.PositionID)
}

// AddCollateral tops up a position.
func (c *Commands) AddCollateral(ctx context.Context, positionID string, amount asset.Amount) (position.State, error) {
	if err := c.rerun(ctx, func() domain.Saga { return c.sagas.AddCollateral(positionID, amount) }); err != nil {
		return position.State{}, err
	}
	return c.positions.Get(ctx, positionID)
}

// Burn repays debt and optionally releases collateral. Pass the zero Amount
// to release nothing.
func (c *Commands) Burn(ctx context.Context, positionID string, amount, release asset.Amount) (position.State, error) {
	if err := c.rerun(ctx, func() domain.Saga { return c.sagas.Burn(positionID, amount, release) }); err != nil {
		return position.State{}, err
	}
	return c.positions.Get(ctx, positionID)
}

// Liquidate auctions and settles an insolvent position.
func (c *Commands) Liquidate(ctx context.Context, positionID string) (position.State, error) {
	if err := c.rerun(ctx, func() domain.Saga { return c.sagas.Liquidation(positionID) }); err != nil {
		return position.State{}, err
	}
	return c.positions.Get(ctx, positionID)
}

// Settle finishes a liquidation whose settlement did not complete.
func (c *Commands) Settle(ctx context.Context, positionID string) (position.State, error) {
	if err := c.rerun(ctx, func() domain.Saga { return c.sagas.Settlement(positionID) }); err != nil {
		return position.State{}, err
	}
	return c.positions.Get(ctx, positionID)
}

// InitiateDeposit credits account once the bank confirms the deposit. The
// deposit's final state is returned even when the saga failed.
func (c *Commands) InitiateDeposit(ctx context.Context, account string, amount asset.Amount) (funding.State, error) {
	id := uuid.NewString()
	return c.fundingResult(ctx, id, c.runner.Run(ctx, c.sagas.Deposit(id, account, amount)))
}

// InitiateWithdrawal debits account and pays out to destination.
func (c *Commands) InitiateWithdrawal(ctx context.Context, account string, amount asset.Amount, destination string) (funding.State, error) {
	id := uuid.NewString()
	return c.fundingResult(ctx, id, c.runner.Run(ctx, c.sagas.Withdrawal(id, account, amount, destination)))
}

// InitiateTransfer moves amount from one account to another and returns the
// transfer id. Its legs are recorded as <id>-out and <id>-in.
func (c *Commands) InitiateTransfer(ctx context.Context, from, to string, amount asset.Amount) (string, error) {
	id := uuid.NewString()
	return id, c.runner.Run(ctx, c.sagas.Transfer(id, from, to, amount)).Err()
}

func (c *Commands) fundingResult(ctx context.Context, id string, res domain.Result) (funding.State, error) {
	st, err := c.funding.Get(ctx, id)
	if sagaErr := res.Err(); sagaErr != nil {
		return st, sagaErr
	}
	return st, err
}

// rerun runs the saga build returns, rebuilding it after a compensated
// concurrency failure.
func (c *Commands) rerun(ctx context.Context, build func() domain.Saga) error {
	for attempt := 1; ; attempt++ {
		res := c.runner.Run(ctx, build())
		if res.Succeeded() {
			return nil
		}
		conflict := res.Status == domain.StatusCompensated &&
			res.Failure != nil && res.Failure.Category == domain.CategoryConcurrency
		if !conflict || attempt >= c.attempts || ctx.Err() != nil {
			return res.Err()
		}
		c.logger.Debug(ctx, "rerunning saga after concurrent modification",
			"saga", res.Name, "saga_id", res.SagaID, "attempt", attempt)
	}
}
