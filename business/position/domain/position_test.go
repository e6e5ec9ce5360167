package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auction "github.com/fd1az/stablecoin-engine/business/auction/domain"
	risk "github.com/fd1az/stablecoin-engine/business/risk/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func wbtc(s string) asset.Amount  { return asset.MustParse(asset.WBTC, s) }
func usds(s string) asset.Amount { return asset.MustParse(asset.USDS, s) }

func valuation(t *testing.T, ethPrice string) risk.Valuation {
	t.Helper()
	threshold, err := risk.NewLiquidationThreshold(decimal.NewFromInt(150))
	require.NoError(t, err)
	return risk.Valuation{
		CollateralPrice: asset.MustNewPrice(asset.WBTC, asset.USD, ethPrice, t0),
		DebtPrice:       asset.MustNewPrice(asset.USDS, asset.USD, "1", t0),
		Threshold:       threshold,
		Type:            risk.CollateralCrypto,
	}
}

func opened(t *testing.T) State {
	t.Helper()
	e, err := Open(State{}, OpenPosition{
		PositionID: "pos-1",
		Owner:      "alice",
		Collateral: wbtc("2000"),
		Mint:       usds("1000"),
	}, valuation(t, "1"), t0)
	require.NoError(t, err)
	return Apply(State{}, e)
}

func requireCode(t *testing.T, err error, code apperror.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperror.GetCode(err), "err = %v", err)
}

func TestOpen(t *testing.T) {
	s := opened(t)

	assert.Equal(t, int64(1), s.Version)
	assert.Equal(t, StatusOpen, s.Status)
	assert.True(t, s.Debt.Equal(usds("1000")))
	assert.True(t, s.Collateral.Equal(wbtc("2000")))
	assert.Equal(t, asset.USDS.Code(), s.Stablecoin)

	a, err := valuation(t, "1").Assess(s.Collateral, s.Debt)
	require.NoError(t, err)
	assert.Equal(t, "2", a.Ratio.String())
}

func TestOpen_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		state State
		cmd   OpenPosition
		price string
		want  apperror.Code
	}{
		{
			name:  "below_minimum_ratio",
			cmd:   OpenPosition{PositionID: "p", Owner: "o", Collateral: wbtc("1500"), Mint: usds("1000")},
			price: "1",
			want:  apperror.CodeInsufficientCollateral,
		},
		{
			name:  "under_margin_call_level",
			cmd:   OpenPosition{PositionID: "p", Owner: "o", Collateral: wbtc("1700"), Mint: usds("1000")},
			price: "1",
			want:  apperror.CodeInsufficientCollateral,
		},
		{
			name:  "zero_mint",
			cmd:   OpenPosition{PositionID: "p", Owner: "o", Collateral: wbtc("1"), Mint: usds("0")},
			price: "1",
			want:  apperror.CodeValidationError,
		},
		{
			name:  "missing_owner",
			cmd:   OpenPosition{PositionID: "p", Collateral: wbtc("1"), Mint: usds("1")},
			price: "1",
			want:  apperror.CodeValidationError,
		},
		{
			name:  "already_open",
			state: State{ID: "p", Version: 1, Status: StatusOpen},
			cmd:   OpenPosition{PositionID: "p", Owner: "o", Collateral: wbtc("2000"), Mint: usds("1")},
			price: "1",
			want:  apperror.CodeInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.state, tt.cmd, valuation(t, tt.price), t0)
			requireCode(t, err, tt.want)
			assert.False(t, apperror.IsRetryable(err))
		})
	}
}

func TestBurn(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		release     string
		price       string
		want        apperror.Code
		wantStatus  Status
		wantDebt    string
		wantCollat  string
		wantVersion int64
	}{
		{name: "partial", amount: "400", release: "0", price: "1", wantStatus: StatusOpen, wantDebt: "600", wantCollat: "2000", wantVersion: 2},
		{name: "partial_with_release", amount: "500", release: "1000", price: "1", wantStatus: StatusOpen, wantDebt: "500", wantCollat: "1000", wantVersion: 2},
		{name: "full_closes", amount: "1000", release: "2000", price: "1", wantStatus: StatusClosed, wantDebt: "0", wantCollat: "0", wantVersion: 2},
		{name: "full_keeps_collateral_open", amount: "1000", release: "0", price: "1", wantStatus: StatusOpen, wantDebt: "0", wantCollat: "2000", wantVersion: 2},
		{name: "exceeds_debt", amount: "1000.01", release: "0", price: "1", want: apperror.CodeDebtExceeded},
		{name: "release_exceeds_collateral", amount: "1000", release: "2001", price: "1", want: apperror.CodeInsufficientCollateral},
		{name: "release_breaks_minimum", amount: "100", release: "1000", price: "1", want: apperror.CodeInsufficientCollateral},
		{name: "nothing", amount: "0", release: "0", price: "1", want: apperror.CodeValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := opened(t)
			e, err := Burn(s, usds(tt.amount), wbtc(tt.release), valuation(t, tt.price), t0.Add(time.Minute))
			if tt.want != "" {
				requireCode(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			next := Apply(s, e)
			assert.Equal(t, tt.wantStatus, next.Status)
			assert.True(t, next.Debt.Equal(usds(tt.wantDebt)), "debt = %s", next.Debt)
			assert.True(t, next.Collateral.Equal(wbtc(tt.wantCollat)), "collateral = %s", next.Collateral)
			assert.Equal(t, tt.wantVersion, next.Version)
			assert.Equal(t, t0.Add(time.Minute), next.UpdatedAt)
		})
	}
}

func TestClosedPositionRejectsEveryCommand(t *testing.T) {
	s := opened(t)
	e, err := Burn(s, usds("1000"), wbtc("2000"), valuation(t, "1"), t0)
	require.NoError(t, err)
	s = Apply(s, e)
	require.True(t, s.IsClosed())

	_, err = AddCollateral(s, wbtc("1"), t0)
	requireCode(t, err, apperror.CodePositionClosed)
	_, err = Burn(s, usds("0"), wbtc("1"), valuation(t, "1"), t0)
	requireCode(t, err, apperror.CodePositionClosed)
	_, err = MarginCall(s, risk.Assessment{Health: risk.HealthMarginCall}, t0)
	requireCode(t, err, apperror.CodePositionClosed)
	_, err = Liquidate(s, risk.Assessment{Health: risk.HealthLiquidation}, auction.Result{PositionID: "pos-1", HasWinner: true}, t0)
	requireCode(t, err, apperror.CodePositionClosed)
	assert.True(t, errors.Is(err, ErrPositionClosed))
}

func TestUnknownPositionIsNotFound(t *testing.T) {
	_, err := AddCollateral(State{}, wbtc("1"), t0)
	requireCode(t, err, apperror.CodePositionNotFound)
}

func TestMarginCallAndTopUp(t *testing.T) {
	s := opened(t)
	v := valuation(t, "0.70")

	a, err := v.Assess(s.Collateral, s.Debt)
	require.NoError(t, err)
	require.Equal(t, "1.4", a.Ratio.String())
	require.Equal(t, risk.HealthMarginCall, a.Health)

	e, err := MarginCall(s, a, t0)
	require.NoError(t, err)
	s = Apply(s, e)
	assert.Equal(t, StatusMarginCalled, s.Status)

	_, err = MarginCall(s, a, t0)
	requireCode(t, err, apperror.CodeInvalidState)

	added, err := AddCollateral(s, wbtc("2000"), t0)
	require.NoError(t, err)
	s = Apply(s, added)
	assert.Equal(t, StatusOpen, s.Status)
	assert.Equal(t, int64(3), s.Version)

	_, err = AddCollateral(s, usds("1"), t0)
	requireCode(t, err, apperror.CodeValidationError)
}

func TestMarginCall_RequiresMarginCallHealth(t *testing.T) {
	s := opened(t)
	a, err := valuation(t, "1").Assess(s.Collateral, s.Debt)
	require.NoError(t, err)

	_, err = MarginCall(s, a, t0)
	requireCode(t, err, apperror.CodeInvalidState)
}

func TestLiquidateAndSettle(t *testing.T) {
	s := opened(t)
	v := valuation(t, "0.40")
	a, err := v.Assess(s.Collateral, s.Debt)
	require.NoError(t, err)
	require.Equal(t, risk.HealthLiquidation, a.Health)

	_, err = Liquidate(s, a, auction.Result{PositionID: "pos-1"}, t0)
	requireCode(t, err, apperror.CodeAuctionFailed)

	won := auction.Result{
		PositionID:        "pos-1",
		HasWinner:         true,
		WinnerID:          "keeper",
		BidAmount:         asset.MustParse(asset.USD, "1000"),
		CollateralAwarded: wbtc("2000"),
		ExcessCollateral:  wbtc("0"),
	}
	e, err := Liquidate(s, a, won, t0)
	require.NoError(t, err)
	s = Apply(s, e)
	assert.Equal(t, StatusLiquidating, s.Status)
	require.NotNil(t, s.Liquidation)

	_, err = AddCollateral(s, wbtc("1"), t0)
	requireCode(t, err, apperror.CodeInvalidState)
	_, err = Burn(s, usds("1"), wbtc("0"), v, t0)
	requireCode(t, err, apperror.CodeInvalidState)

	settled, err := SettleLiquidation(s, t0)
	require.NoError(t, err)
	assert.True(t, settled.Repaid.Equal(usds("1000")))
	s = Apply(s, settled)
	assert.Equal(t, StatusClosed, s.Status)
	assert.True(t, s.Debt.IsZero())
	assert.True(t, s.Collateral.IsZero())
	assert.Equal(t, int64(3), s.Version)
}

func TestLiquidate_RequiresInsolvency(t *testing.T) {
	s := opened(t)
	a, err := valuation(t, "0.70").Assess(s.Collateral, s.Debt)
	require.NoError(t, err)

	_, err = Liquidate(s, a, auction.Result{PositionID: "pos-1", HasWinner: true}, t0)
	requireCode(t, err, apperror.CodeInvalidState)
}

func TestFold_IsDeterministic(t *testing.T) {
	events := []Event{
		PositionOpened{Meta: Meta{PositionID: "p", At: t0}, Owner: "o", Stablecoin: asset.USDS.Code(), CollateralAsset: asset.WBTC.Code(),
			Collateral: wbtc("10"), Debt: usds("5")},
		CollateralAdded{Meta: Meta{PositionID: "p", At: t0}, Amount: wbtc("1")},
		DebtBurned{Meta: Meta{PositionID: "p", At: t0}, Amount: usds("2"), Released: wbtc("0")},
	}
	a := Fold(State{}, events...)
	b := Fold(Fold(State{}, events[0]), events[1:]...)

	assert.Equal(t, a, b)
	assert.Equal(t, int64(3), a.Version)
	assert.True(t, a.Collateral.Equal(wbtc("11")))
	assert.True(t, a.Debt.Equal(usds("3")))
}
