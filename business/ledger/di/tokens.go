// Package di contains dependency injection tokens for the ledger context.
package di

import (
	"github.com/fd1az/stablecoin-engine/business/ledger/domain"
	"github.com/fd1az/stablecoin-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Ledger = di.NewToken[domain.Ledger]("ledger.Ledger")
)

func GetLedger(c di.ServiceRegistry) domain.Ledger {
	return di.GetToken(c, Ledger)
}
