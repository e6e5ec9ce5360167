package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

var (
	t0       = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ethUSD   = asset.MustNewPrice(asset.ETH, asset.USD, "1000", t0)
	fivePct  = asset.RatioFromString("0.05")
	oneETH   = asset.MustParse(asset.ETH, "1")
	debt800  = asset.MustParse(asset.USD, "800")
	usd      = func(s string) asset.Amount { return asset.MustParse(asset.USD, s) }
	eth      = func(s string) asset.Amount { return asset.MustParse(asset.ETH, s) }
	standard = Lot{PositionID: "pos-1", Owner: "alice", Collateral: oneETH, DebtValue: debt800}
)

func bid(id, amount string, attested bool, at time.Duration) Bid {
	return Bid{BidderID: id, Amount: usd(amount), FundsAttested: attested, PlacedAt: t0.Add(at)}
}

func TestRunAuction(t *testing.T) {
	tests := []struct {
		name        string
		lot         Lot
		bids        []Bid
		bonus       asset.Ratio
		wantWinner  string
		wantBid     string
		wantAward   string
		wantExcess  string
		wantErrCode apperror.Code
	}{
		{
			name:       "highest_valid_bid_wins",
			lot:        standard,
			bids:       []Bid{bid("b1", "810", true, 0), bid("b2", "850", true, time.Second), bid("b3", "900", false, 0)},
			bonus:      fivePct,
			wantWinner: "b2",
			wantBid:    "850",
			wantAward:  "0.84",
			wantExcess: "0.16",
		},
		{
			name:       "tie_goes_to_earliest",
			lot:        standard,
			bids:       []Bid{bid("late", "820", true, time.Minute), bid("early", "820", true, 0)},
			bonus:      fivePct,
			wantWinner: "early",
			wantBid:    "820",
			wantAward:  "0.84",
			wantExcess: "0.16",
		},
		{
			name:       "bid_equal_to_debt_is_valid",
			lot:        standard,
			bids:       []Bid{bid("b1", "800", true, 0)},
			bonus:      asset.RatioFromString("0"),
			wantWinner: "b1",
			wantBid:    "800",
			wantAward:  "0.8",
			wantExcess: "0.2",
		},
		{
			name:       "award_capped_at_collateral",
			lot:        Lot{PositionID: "pos-2", Collateral: oneETH, DebtValue: usd("980")},
			bids:       []Bid{bid("b1", "990", true, 0)},
			bonus:      fivePct,
			wantWinner: "b1",
			wantBid:    "990",
			wantAward:  "1",
			wantExcess: "0",
		},
		{
			name:        "bids_below_debt_fail",
			lot:         standard,
			bids:        []Bid{bid("b1", "799.99", true, 0)},
			bonus:       fivePct,
			wantErrCode: apperror.CodeAuctionFailed,
		},
		{
			name:        "unattested_funds_fail",
			lot:         standard,
			bids:        []Bid{bid("b1", "2000", false, 0)},
			bonus:       fivePct,
			wantErrCode: apperror.CodeAuctionFailed,
		},
		{
			name:        "no_bids_fail",
			lot:         standard,
			bonus:       fivePct,
			wantErrCode: apperror.CodeAuctionFailed,
		},
		{
			name:        "bonus_out_of_range",
			lot:         standard,
			bids:        []Bid{bid("b1", "900", true, 0)},
			bonus:       asset.RatioFromString("0.6"),
			wantErrCode: apperror.CodeValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RunAuction(tt.lot, ethUSD, tt.bids, tt.bonus)
			if tt.wantErrCode != "" {
				if apperror.GetCode(err) != tt.wantErrCode {
					t.Fatalf("err = %v, want %s", err, tt.wantErrCode)
				}
				if got.HasWinner {
					t.Error("failed auction reported a winner")
				}
				if !got.ExcessCollateral.Equal(tt.lot.Collateral) {
					t.Errorf("excess = %s, want all collateral", got.ExcessCollateral)
				}
				return
			}
			if err != nil {
				t.Fatalf("RunAuction: %v", err)
			}
			if !got.HasWinner || got.WinnerID != tt.wantWinner {
				t.Errorf("winner = %q (has=%v), want %q", got.WinnerID, got.HasWinner, tt.wantWinner)
			}
			if !got.BidAmount.Equal(usd(tt.wantBid)) {
				t.Errorf("bid = %s, want %s", got.BidAmount, tt.wantBid)
			}
			if !got.CollateralAwarded.Equal(eth(tt.wantAward)) {
				t.Errorf("award = %s, want %s", got.CollateralAwarded, tt.wantAward)
			}
			if !got.ExcessCollateral.Equal(eth(tt.wantExcess)) {
				t.Errorf("excess = %s, want %s", got.ExcessCollateral, tt.wantExcess)
			}
		})
	}
}

func TestRunAuction_FailureIsRetryable(t *testing.T) {
	_, err := RunAuction(standard, ethUSD, nil, fivePct)
	if !apperror.IsRetryable(err) {
		t.Errorf("AuctionFailed should be retryable: %v", err)
	}
}

func TestAward_NeverExceedsCollateral(t *testing.T) {
	for _, debt := range []string{"1", "500", "952.38", "999.99", "1000", "5000"} {
		for _, bonus := range []string{"0", "0.01", "0.05", "0.1", "0.5"} {
			t.Run(fmt.Sprintf("debt_%s_bonus_%s", debt, bonus), func(t *testing.T) {
				lot := Lot{PositionID: "p", Collateral: oneETH, DebtValue: usd(debt)}
				award, err := Award(lot, ethUSD, asset.RatioFromString(bonus))
				if err != nil {
					t.Fatal(err)
				}
				if oneETH.LessThan(award) {
					t.Errorf("award %s exceeds collateral %s", award, oneETH)
				}
			})
		}
	}
}

func TestRunAuction_PriceMustMatchLot(t *testing.T) {
	wbtc := asset.MustNewPrice(asset.WBTC, asset.USD, "60000", t0)
	_, err := RunAuction(standard, wbtc, []Bid{bid("b1", "900", true, 0)}, fivePct)
	if apperror.GetCode(err) != apperror.CodeValidationError {
		t.Errorf("err = %v", err)
	}
}
