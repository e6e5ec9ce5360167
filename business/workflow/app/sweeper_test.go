package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	position "github.com/fd1az/stablecoin-engine/business/position/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

func newSweeper(t *testing.T, e *env) *Sweeper {
	t.Helper()
	s, err := NewSweeper(SweeperConfig{Interval: time.Hour, Workers: 4},
		e.positions, e.prices, e.auctions, e.commands, &mockLogger{})
	require.NoError(t, err)
	return s
}

func TestSweeper_HealthyPositionsNeedNoAction(t *testing.T) {
	e := newEnv(t)
	e.open(t, "alice", "2000", "1000")
	e.open(t, "bob", "3000", "1000")

	report, err := newSweeper(t, e).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 2, report.Outcomes[OutcomeNoAction])
	assert.Empty(t, report.Errors)
}

func TestSweeper_IssuesMarginCallOnce(t *testing.T) {
	e := newEnv(t)
	st := e.open(t, "alice", "2000", "1000")
	s := newSweeper(t, e)
	ctx := context.Background()

	// 1400 / 1000 is under the 180% margin call level but solvent.
	e.prices.set("0.70")
	report, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[OutcomeMarginCall])

	called, err := e.positions.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, position.StatusMarginCalled, called.Status)
	assert.Equal(t, st.Version+1, called.Version)

	report, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[OutcomeMarginCall])
	again, err := e.positions.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, called.Version, again.Version)
}

func TestSweeper_LiquidatesBatchAndCoolsDownFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var small []string
	for range 9 {
		small = append(small, e.open(t, "alice", "2000", "1000").ID)
	}
	big := e.open(t, "bob", "4000", "2000")

	e.fund(t, "keeper", usd("10000"))
	e.bids.Stand("keeper", usd("1000"))
	e.prices.set("0.40")

	s := newSweeper(t, e)
	report, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Checked)
	assert.Equal(t, 9, report.Outcomes[OutcomeLiquidated])
	assert.Equal(t, 1, report.Outcomes[OutcomeFailed])
	require.Contains(t, report.Errors, big.ID)
	assert.Equal(t, apperror.CodeAuctionFailed, apperror.GetCode(report.Errors[big.ID]))

	for _, id := range small {
		st, err := e.positions.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, st.IsClosed(), id)
	}

	treasury, _ := e.balance(t, DefaultTreasury, asset.USD)
	assert.Equal(t, "9000", treasury)
	keeperUSD, _ := e.balance(t, "keeper", asset.USD)
	assert.Equal(t, "1000", keeperUSD)
	keeperWBTC, _ := e.balance(t, "keeper", asset.WBTC)
	assert.Equal(t, "18000", keeperWBTC)

	report, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, report.Outcomes[OutcomeClosed])
	assert.Equal(t, 1, report.Outcomes[OutcomeCoolingDown])
	assert.Empty(t, report.Errors)

	_, locked := e.balance(t, "bob", asset.WBTC)
	assert.Equal(t, "4000", locked)
}

func TestSweeper_ResumesFailedSettlement(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	st := e.open(t, "alice", "2000", "1000")
	e.fund(t, "keeper", usd("1000"))
	e.bids.Stand("keeper", usd("1000"))
	e.prices.set("0.40")
	e.positions.failOnce("settle", apperror.New(apperror.CodeEventStoreError))

	s := newSweeper(t, e)
	report, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[OutcomeFailed])

	mid, err := e.positions.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, position.StatusLiquidating, mid.Status)

	report, err = s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[OutcomeSettled])

	done, err := e.positions.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, done.IsClosed())
	treasury, _ := e.balance(t, DefaultTreasury, asset.USD)
	assert.Equal(t, "1000", treasury)
}

func TestSweeper_StartStop(t *testing.T) {
	e := newEnv(t)
	e.open(t, "alice", "2000", "1000")
	e.fund(t, "keeper", usd("1000"))
	e.bids.Stand("keeper", usd("1000"))
	e.prices.set("0.40")

	s, err := NewSweeper(SweeperConfig{Interval: 5 * time.Millisecond, Workers: 1},
		e.positions, e.prices, e.auctions, e.commands, &mockLogger{})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		treasury, _ := e.balance(t, DefaultTreasury, asset.USD)
		return treasury == "1000"
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
}
