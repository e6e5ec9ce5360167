package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	auction "github.com/fd1az/stablecoin-engine/business/auction/domain"
	fundingapp "github.com/fd1az/stablecoin-engine/business/funding/app"
	funding "github.com/fd1az/stablecoin-engine/business/funding/domain"
	ledger "github.com/fd1az/stablecoin-engine/business/ledger/domain"
	position "github.com/fd1az/stablecoin-engine/business/position/domain"
	risk "github.com/fd1az/stablecoin-engine/business/risk/domain"
	"github.com/fd1az/stablecoin-engine/business/workflow/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// Saga names.
const (
	SagaMint          = "mint"
	SagaAddCollateral = "add_collateral"
	SagaBurn          = "burn"
	SagaLiquidation   = "liquidation"
	SagaSettlement    = "settlement"
	SagaDeposit       = "deposit"
	SagaWithdrawal    = "withdrawal"
	SagaTransfer      = "transfer"
)

// DefaultTreasury receives liquidation proceeds.
const DefaultTreasury = "treasury"

// SagaDeps are the collaborators sagas act on.
type SagaDeps struct {
	Ledger    ledger.Ledger
	Positions Positions
	Valuer    Valuer
	Auctions  Auctions
	Funding   Funding
	Bank      Bank
	// Treasury is the ledger account liquidation bids are paid into.
	Treasury string
}

// Sagas builds the business sagas. Every builder returns a fresh saga with
// its own id; ledger movements are referenced by saga id and step so a
// retried step never moves funds twice.
//
// Aggregate appends come last in each saga, so compensations only ever undo
// ledger movements and funding markers.
type Sagas struct {
	deps SagaDeps
	orch *Orchestrator
}

// NewSagas creates a builder. orch runs the child sagas of a transfer.
func NewSagas(deps SagaDeps, orch *Orchestrator) *Sagas {
	if deps.Treasury == "" {
		deps.Treasury = DefaultTreasury
	}
	return &Sagas{deps: deps, orch: orch}
}

func ref(sagaID, step string) string { return sagaID + ":" + step }

func zeroOf(a asset.Amount) asset.Amount { return a.MustSub(a) }

// Mint locks collateral, checks the minimum ratio, credits the stablecoin and
// opens the position. cmd.PositionID must be set.
func (b *Sagas) Mint(cmd position.OpenPosition) domain.Saga {
	id := uuid.NewString()
	return domain.Saga{
		ID:   id,
		Name: SagaMint,
		Steps: []domain.Step{
			b.lock(id, "lock_collateral", cmd.Owner, cmd.Collateral),
			{
				Name: "check_risk",
				Action: func(ctx context.Context) error {
					return b.checkMinimum(ctx, cmd.Collateral, cmd.Mint)
				},
			},
			b.credit(id, "mint_stablecoin", cmd.Owner, cmd.Mint),
			{
				Name: "open_position",
				Action: func(ctx context.Context) error {
					_, err := b.deps.Positions.Open(ctx, cmd)
					return err
				},
			},
		},
	}
}

func (b *Sagas) checkMinimum(ctx context.Context, collateral, debt asset.Amount) error {
	v, err := b.deps.Valuer.Valuation(ctx, collateral.Code(), debt.Code())
	if err != nil {
		return err
	}
	ok, ratio, err := v.MeetsMinimum(collateral, debt)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeValidationError, "value mint")
	}
	if !ok {
		return apperror.New(apperror.CodeInsufficientCollateral,
			apperror.WithContext(fmt.Sprintf("ratio %s below minimum %s", ratio, v.MintFloor())))
	}
	return nil
}

// AddCollateral locks more collateral and records it at the version read.
func (b *Sagas) AddCollateral(positionID string, amount asset.Amount) domain.Saga {
	id := uuid.NewString()
	var st position.State

	return domain.Saga{
		ID:   id,
		Name: SagaAddCollateral,
		Steps: []domain.Step{
			{
				Name: "load_position",
				Action: func(ctx context.Context) error {
					s, err := b.deps.Positions.Get(ctx, positionID)
					if err != nil {
						return err
					}
					if s.CollateralAsset != amount.Code() {
						return apperror.Validation(fmt.Sprintf("position %s holds %s, not %s",
							positionID, s.CollateralAsset, amount.Code()))
					}
					st = s
					return nil
				},
			},
			b.lockFn(id, "lock_collateral", func() string { return st.Owner }, amount),
			{
				Name: "add_collateral",
				Action: func(ctx context.Context) error {
					_, err := b.deps.Positions.AddCollateral(ctx, positionID, st.Version, amount)
					return err
				},
			},
		},
	}
}

// Burn destroys stablecoin, releases collateral and records the burn. A
// release with no asset releases nothing.
func (b *Sagas) Burn(positionID string, amount, release asset.Amount) domain.Saga {
	id := uuid.NewString()
	var st position.State
	owner := func() string { return st.Owner }

	return domain.Saga{
		ID:   id,
		Name: SagaBurn,
		Steps: []domain.Step{
			{
				Name: "check_burn",
				Action: func(ctx context.Context) error {
					if release.Code() == "" {
						cur, err := b.deps.Positions.Get(ctx, positionID)
						if err != nil {
							return err
						}
						release = zeroOf(cur.Collateral)
					}
					s, err := b.deps.Positions.CheckBurn(ctx, positionID, amount, release)
					if err != nil {
						return err
					}
					st = s
					return nil
				},
			},
			b.debitFn(id, "burn_stablecoin", owner, fixed(amount)),
			{
				Name: "release_collateral",
				Action: func(ctx context.Context) error {
					if !release.IsPositive() {
						return nil
					}
					return b.deps.Ledger.Release(ctx, st.Owner, release, ref(id, "release_collateral"))
				},
				Compensation: func(ctx context.Context) error {
					if !release.IsPositive() {
						return nil
					}
					return b.deps.Ledger.Lock(ctx, st.Owner, release, ref(id, "release_collateral"))
				},
			},
			{
				Name: "record_burn",
				Action: func(ctx context.Context) error {
					_, err := b.deps.Positions.Burn(ctx, positionID, st.Version, amount, release)
					return err
				},
			},
		},
	}
}

// settlement is what a liquidated position owes and is owed.
type settlement struct {
	positionID string
	owner      string
	version    int64
	collateral asset.Amount
	result     auction.Result
}

func (s *settlement) load(st position.State) error {
	if st.Status != position.StatusLiquidating || st.Liquidation == nil {
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithContext(fmt.Sprintf("position %s is %s, not awaiting settlement", st.ID, st.Status)))
	}
	s.positionID = st.ID
	s.owner = st.Owner
	s.version = st.Version
	s.collateral = st.Collateral
	s.result = *st.Liquidation
	return nil
}

// Liquidation auctions an insolvent position, records the win and settles
// it. If settlement fails after the win is recorded, the position stays
// Liquidating and Settlement finishes it later.
func (b *Sagas) Liquidation(positionID string) domain.Saga {
	id := uuid.NewString()
	var (
		st  position.State
		val risk.Valuation
		a   risk.Assessment
		res auction.Result
		set settlement

		recorded bool
	)

	steps := []domain.Step{
		{
			Name: "assess",
			Action: func(ctx context.Context) error {
				s, err := b.deps.Positions.Get(ctx, positionID)
				if err != nil {
					return err
				}
				if s.Status == position.StatusLiquidating {
					return apperror.New(apperror.CodeInvalidState,
						apperror.WithContext("position "+positionID+" is awaiting settlement"))
				}
				if s.IsClosed() {
					return position.ErrPositionClosed
				}
				v, err := b.deps.Valuer.Valuation(ctx, s.CollateralAsset, s.Stablecoin)
				if err != nil {
					return err
				}
				assessment, err := v.Assess(s.Collateral, s.Debt)
				if err != nil {
					return apperror.Wrap(err, apperror.CodeInvalidInput, "assess position")
				}
				if !assessment.RequiresLiquidation() {
					return apperror.New(apperror.CodeInvalidState,
						apperror.WithContext(fmt.Sprintf("position %s is %s at ratio %s", positionID, assessment.Health, assessment.Ratio)))
				}
				st, val, a = s, v, assessment
				return nil
			},
		},
		{
			Name:    "auction",
			NoRetry: true,
			Action: func(ctx context.Context) error {
				r, err := b.deps.Auctions.RunAuction(ctx, auction.Lot{
					PositionID: positionID,
					Owner:      st.Owner,
					Collateral: st.Collateral,
					DebtValue:  a.DebtValue,
				}, val.CollateralPrice)
				if err != nil {
					return err
				}
				res = r
				return nil
			},
		},
		{
			// The winner's bid stays locked until settlement collects it.
			// Once the win is recorded the reservation belongs to the
			// position, so a failed settlement leaves it in place.
			Name: "reserve_bid",
			Action: func(ctx context.Context) error {
				if res.BidAmount.IsZero() {
					return nil
				}
				return b.deps.Ledger.Lock(ctx, res.WinnerID, res.BidAmount, ref(id, "reserve_bid"))
			},
			Compensation: func(ctx context.Context) error {
				if recorded || res.BidAmount.IsZero() {
					return nil
				}
				return b.deps.Ledger.Release(ctx, res.WinnerID, res.BidAmount, ref(id, "reserve_bid"))
			},
		},
		{
			Name: "record_liquidation",
			Action: func(ctx context.Context) error {
				next, err := b.deps.Positions.Liquidate(ctx, positionID, st.Version, res)
				if err != nil {
					return err
				}
				recorded = true
				return set.load(next)
			},
		},
	}

	return domain.Saga{
		ID:    id,
		Name:  SagaLiquidation,
		Steps: append(steps, b.settlementSteps(id, &set)...),
	}
}

// Settlement finishes a position left Liquidating.
func (b *Sagas) Settlement(positionID string) domain.Saga {
	id := uuid.NewString()
	var set settlement

	load := domain.Step{
		Name: "load_liquidation",
		Action: func(ctx context.Context) error {
			s, err := b.deps.Positions.Get(ctx, positionID)
			if err != nil {
				return err
			}
			return set.load(s)
		},
	}
	return domain.Saga{
		ID:    id,
		Name:  SagaSettlement,
		Steps: append([]domain.Step{load}, b.settlementSteps(id, &set)...),
	}
}

// settlementSteps collect the winner's reserved bid into the treasury, hand
// the awarded collateral to the winner and leave the excess with the owner.
func (b *Sagas) settlementSteps(id string, set *settlement) []domain.Step {
	winner := func() string { return set.result.WinnerID }
	owner := func() string { return set.owner }
	bid := func() asset.Amount { return set.result.BidAmount }
	award := func() asset.Amount { return set.result.CollateralAwarded }

	return []domain.Step{
		{
			Name: "collect_bid",
			Action: func(ctx context.Context) error {
				amt := bid()
				if amt.IsZero() {
					return nil
				}
				return b.deps.Ledger.Settle(ctx, winner(), amt, ref(id, "collect_bid"))
			},
			Compensation: func(ctx context.Context) error {
				amt := bid()
				if amt.IsZero() {
					return nil
				}
				// Put the bid back under reservation.
				if err := b.deps.Ledger.Credit(ctx, winner(), amt, ref(id, "collect_bid")); err != nil {
					return err
				}
				return b.deps.Ledger.Lock(ctx, winner(), amt, ref(id, "collect_bid"))
			},
		},
		b.creditFn(id, "credit_treasury", func() string { return b.deps.Treasury }, bid),
		{
			Name: "release_collateral",
			Action: func(ctx context.Context) error {
				return b.deps.Ledger.Release(ctx, set.owner, set.collateral, ref(id, "release_collateral"))
			},
			Compensation: func(ctx context.Context) error {
				return b.deps.Ledger.Lock(ctx, set.owner, set.collateral, ref(id, "release_collateral"))
			},
		},
		b.debitFn(id, "seize_collateral", owner, award),
		b.creditFn(id, "award_collateral", winner, award),
		{
			Name: "settle_position",
			Action: func(ctx context.Context) error {
				_, err := b.deps.Positions.SettleLiquidation(ctx, set.positionID, set.version)
				return err
			},
		},
	}
}

// Deposit records, credits, confirms with the bank and completes a deposit.
func (b *Sagas) Deposit(fundingID, account string, amount asset.Amount) domain.Saga {
	id := uuid.NewString()
	var txID string

	return domain.Saga{
		ID:   id,
		Name: SagaDeposit,
		Steps: []domain.Step{
			{
				Name: "initiate",
				Action: func(ctx context.Context) error {
					_, err := b.deps.Funding.Initiate(ctx, funding.KindDeposit, fundingID, account, amount, "")
					return err
				},
				Compensation: func(ctx context.Context) error {
					_, err := b.deps.Funding.Fail(ctx, fundingID, "deposit rolled back", false, txID)
					return err
				},
			},
			b.credit(id, "credit_account", account, amount),
			{
				Name: "confirm_deposit",
				Action: func(ctx context.Context) error {
					tx, err := b.deps.Bank.ConfirmDeposit(ctx, fundingapp.TransferRequest{
						Reference: fundingID,
						Account:   account,
						Amount:    amount,
					})
					if err != nil {
						return err
					}
					txID = tx
					return nil
				},
			},
			{
				Name: "complete",
				Action: func(ctx context.Context) error {
					_, err := b.deps.Funding.Complete(ctx, fundingID, txID)
					return err
				},
			},
		},
	}
}

// Withdrawal records, debits, pays out and completes a withdrawal. Funds are
// re-credited only while the bank has not accepted the payout; after that
// the withdrawal needs an operator.
func (b *Sagas) Withdrawal(fundingID, account string, amount asset.Amount, destination string) domain.Saga {
	id := uuid.NewString()
	var (
		txID     string
		accepted bool
	)

	return domain.Saga{
		ID:   id,
		Name: SagaWithdrawal,
		Steps: []domain.Step{
			{
				Name: "initiate",
				Action: func(ctx context.Context) error {
					_, err := b.deps.Funding.Initiate(ctx, funding.KindWithdrawal, fundingID, account, amount, destination)
					return err
				},
				Compensation: func(ctx context.Context) error {
					reason := "withdrawal rolled back"
					if accepted {
						reason = "withdrawal paid out but not completed"
					}
					_, err := b.deps.Funding.Fail(ctx, fundingID, reason, accepted, txID)
					return err
				},
			},
			{
				Name: "debit_account",
				Action: func(ctx context.Context) error {
					return b.deps.Ledger.Debit(ctx, account, amount, ref(id, "debit_account"))
				},
				Compensation: func(ctx context.Context) error {
					if accepted {
						return nil
					}
					return b.deps.Ledger.Credit(ctx, account, amount, ref(id, "debit_account"))
				},
			},
			{
				Name:    "bank_transfer",
				NoRetry: true,
				Action: func(ctx context.Context) error {
					tx, err := b.deps.Bank.InitiateTransfer(ctx, fundingapp.TransferRequest{
						Reference:   fundingID,
						Account:     account,
						Destination: destination,
						Amount:      amount,
					})
					if err != nil {
						return err
					}
					txID, accepted = tx, true
					return nil
				},
				Compensation: func(context.Context) error {
					return apperror.New(apperror.CodeManualReconciliationRequired,
						apperror.WithContext(fmt.Sprintf("withdrawal %s: bank transfer %s already accepted", fundingID, txID)),
						apperror.WithRetryable(false))
				},
			},
			{
				Name: "complete",
				Action: func(ctx context.Context) error {
					_, err := b.deps.Funding.Complete(ctx, fundingID, txID)
					return err
				},
			},
		},
	}
}

// Transfer moves funds between accounts as a withdrawal from the source
// followed by a deposit to the target. If the deposit leg fails, an inverse
// deposit returns the funds to the source.
func (b *Sagas) Transfer(transferID, from, to string, amount asset.Amount) domain.Saga {
	return domain.Saga{
		ID:   uuid.NewString(),
		Name: SagaTransfer,
		Steps: []domain.Step{
			{
				Name:   "withdraw",
				Nested: true,
				Action: func(ctx context.Context) error {
					return b.orch.Run(ctx, b.Withdrawal(transferID+"-out", from, amount, "account:"+to)).Err()
				},
				Compensation: func(ctx context.Context) error {
					return b.orch.Run(ctx, b.Deposit(transferID+"-back", from, amount)).Err()
				},
			},
			{
				Name:   "deposit",
				Nested: true,
				Action: func(ctx context.Context) error {
					return b.orch.Run(ctx, b.Deposit(transferID+"-in", to, amount)).Err()
				},
			},
		},
	}
}

func (b *Sagas) lock(id, step, account string, amount asset.Amount) domain.Step {
	return b.lockFn(id, step, func() string { return account }, amount)
}

func (b *Sagas) lockFn(id, step string, account func() string, amount asset.Amount) domain.Step {
	return domain.Step{
		Name: step,
		Action: func(ctx context.Context) error {
			return b.deps.Ledger.Lock(ctx, account(), amount, ref(id, step))
		},
		Compensation: func(ctx context.Context) error {
			return b.deps.Ledger.Release(ctx, account(), amount, ref(id, step))
		},
	}
}

func (b *Sagas) credit(id, step, account string, amount asset.Amount) domain.Step {
	return b.creditFn(id, step, func() string { return account }, fixed(amount))
}

// creditFn and debitFn resolve account and amount when the step runs, for
// sagas whose earlier steps discover them. A zero amount moves nothing.
func (b *Sagas) creditFn(id, step string, account func() string, amount func() asset.Amount) domain.Step {
	return domain.Step{
		Name: step,
		Action: func(ctx context.Context) error {
			amt := amount()
			if amt.IsZero() {
				return nil
			}
			return b.deps.Ledger.Credit(ctx, account(), amt, ref(id, step))
		},
		Compensation: func(ctx context.Context) error {
			amt := amount()
			if amt.IsZero() {
				return nil
			}
			return b.deps.Ledger.Debit(ctx, account(), amt, ref(id, step))
		},
	}
}

func (b *Sagas) debitFn(id, step string, account func() string, amount func() asset.Amount) domain.Step {
	return domain.Step{
		Name: step,
		Action: func(ctx context.Context) error {
			amt := amount()
			if amt.IsZero() {
				return nil
			}
			return b.deps.Ledger.Debit(ctx, account(), amt, ref(id, step))
		},
		Compensation: func(ctx context.Context) error {
			amt := amount()
			if amt.IsZero() {
				return nil
			}
			return b.deps.Ledger.Credit(ctx, account(), amt, ref(id, step))
		},
	}
}

func fixed(a asset.Amount) func() asset.Amount { return func() asset.Amount { return a } }
