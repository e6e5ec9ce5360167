// Package di contains dependency injection tokens for the funding context.
package di

import (
	"github.com/fd1az/stablecoin-engine/business/funding/app"
	"github.com/fd1az/stablecoin-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Service = di.NewToken[*app.Service]("funding.Service")
	Bank    = di.NewToken[app.Bank]("funding.Bank")
)

func GetService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, Service)
}

func GetBank(c di.ServiceRegistry) app.Bank {
	return di.GetToken(c, Bank)
}
