package app

import (
	"context"

	auction "github.com/fd1az/stablecoin-engine/business/auction/domain"
	fundingapp "github.com/fd1az/stablecoin-engine/business/funding/app"
	funding "github.com/fd1az/stablecoin-engine/business/funding/domain"
	position "github.com/fd1az/stablecoin-engine/business/position/domain"
	risk "github.com/fd1az/stablecoin-engine/business/risk/domain"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// Positions is the position command service.
type Positions interface {
	Get(ctx context.Context, id string) (position.State, error)
	IDs(ctx context.Context) ([]string, error)
	Open(ctx context.Context, cmd position.OpenPosition) (position.State, error)
	AddCollateral(ctx context.Context, id string, expected int64, amount asset.Amount) (position.State, error)
	CheckBurn(ctx context.Context, id string, amount, release asset.Amount) (position.State, error)
	Burn(ctx context.Context, id string, expected int64, amount, release asset.Amount) (position.State, error)
	MarginCall(ctx context.Context, id string, expected int64) (position.State, error)
	Liquidate(ctx context.Context, id string, expected int64, result auction.Result) (position.State, error)
	SettleLiquidation(ctx context.Context, id string, expected int64) (position.State, error)
}

// Valuer prices a collateral/debt pair.
type Valuer interface {
	Valuation(ctx context.Context, collateral, debt asset.Code) (risk.Valuation, error)
}

// Auctions runs liquidation auctions.
type Auctions interface {
	RunAuction(ctx context.Context, lot auction.Lot, price asset.Price) (auction.Result, error)
	CoolingDown(positionID string) bool
}

// Funding is the deposit and withdrawal command service.
type Funding interface {
	Get(ctx context.Context, id string) (funding.State, error)
	Initiate(ctx context.Context, kind funding.Kind, id, account string, amount asset.Amount, destination string) (funding.State, error)
	Complete(ctx context.Context, id, externalTxID string) (funding.State, error)
	Fail(ctx context.Context, id, reason string, manual bool, externalTxID string) (funding.State, error)
}

// Bank is the external rail deposits and withdrawals settle through.
type Bank = fundingapp.Bank
