// Package di contains dependency injection tokens for the oracle context.
package di

import (
	"github.com/fd1az/stablecoin-engine/business/oracle/app"
	"github.com/fd1az/stablecoin-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Aggregator = di.NewToken[*app.Aggregator]("oracle.Aggregator")
)

// Private dependency tokens - internal to oracle module
var (
	Sources = di.NewToken[[]app.Source]("oracle:sources")
)

func GetAggregator(c di.ServiceRegistry) *app.Aggregator {
	return di.GetToken(c, Aggregator)
}

func GetSources(c di.ServiceRegistry) []app.Source {
	return di.GetToken(c, Sources)
}
