// Package memory keeps liquidator bids in process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fd1az/stablecoin-engine/business/auction/domain"
	"github.com/fd1az/stablecoin-engine/internal/apperror"
	"github.com/fd1az/stablecoin-engine/internal/asset"
)

// BidBook holds per-position bids and standing keeper bids. A keeper bids
// exactly the debt value of any lot up to its limit.
type BidBook struct {
	now func() time.Time

	mu       sync.Mutex
	bids     map[string][]domain.Bid
	standing map[string]asset.Amount
}

// NewBidBook creates an empty book.
func NewBidBook() *BidBook {
	return &BidBook{
		now:      time.Now,
		bids:     make(map[string][]domain.Bid),
		standing: make(map[string]asset.Amount),
	}
}

// Place records a bid for one position.
func (b *BidBook) Place(_ context.Context, positionID, bidderID string, amount asset.Amount) error {
	if positionID == "" || bidderID == "" {
		return apperror.Validation("bid needs a position and a bidder")
	}
	if !amount.IsPositive() {
		return apperror.Validation("bid amount must be positive")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids[positionID] = append(b.bids[positionID], domain.Bid{
		BidderID: bidderID,
		Amount:   amount,
		PlacedAt: b.now(),
	})
	return nil
}

// Stand registers a keeper willing to cover any debt value up to limit.
// A zero limit withdraws the keeper.
func (b *BidBook) Stand(keeperID string, limit asset.Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit.IsZero() {
		delete(b.standing, keeperID)
		return
	}
	b.standing[keeperID] = limit
}

// Bids returns the lot's bids followed by keeper bids that cover it.
func (b *BidBook) Bids(_ context.Context, lot domain.Lot) ([]domain.Bid, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := append([]domain.Bid(nil), b.bids[lot.PositionID]...)

	keepers := make([]string, 0, len(b.standing))
	for id := range b.standing {
		keepers = append(keepers, id)
	}
	sort.Strings(keepers)
	for _, id := range keepers {
		limit := b.standing[id]
		if limit.Code() != lot.DebtValue.Code() || limit.LessThan(lot.DebtValue) {
			continue
		}
		out = append(out, domain.Bid{BidderID: id, Amount: lot.DebtValue, PlacedAt: b.now()})
	}
	return out, nil
}

// Clear drops the position's bids once it has been liquidated.
func (b *BidBook) Clear(_ context.Context, positionID string) error {
	b.mu.Lock()
	delete(b.bids, positionID)
	b.mu.Unlock()
	return nil
}
