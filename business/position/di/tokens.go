// Package di contains dependency injection tokens for the position context.
package di

import (
	"github.com/fd1az/stablecoin-engine/business/position/app"
	"github.com/fd1az/stablecoin-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Service = di.NewToken[*app.Service]("position.Service")
)

// Private dependency tokens - internal to position module
var (
	Repository = di.NewToken[*app.Repository]("position:repository")
)

func GetService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, Service)
}

func GetRepository(c di.ServiceRegistry) *app.Repository {
	return di.GetToken(c, Repository)
}
