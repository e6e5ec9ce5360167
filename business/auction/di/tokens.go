// Package di contains dependency injection tokens for the auction context.
package di

import (
	"github.com/fd1az/stablecoin-engine/business/auction/app"
	"github.com/fd1az/stablecoin-engine/business/auction/infra/memory"
	"github.com/fd1az/stablecoin-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Auctioneer = di.NewToken[*app.Auctioneer]("auction.Auctioneer")
	BidBook    = di.NewToken[*memory.BidBook]("auction.BidBook")
)

func GetAuctioneer(c di.ServiceRegistry) *app.Auctioneer {
	return di.GetToken(c, Auctioneer)
}

func GetBidBook(c di.ServiceRegistry) *memory.BidBook {
	return di.GetToken(c, BidBook)
}
