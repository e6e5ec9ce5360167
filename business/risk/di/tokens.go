// Package di contains dependency injection tokens for the risk context.
package di

import (
	"github.com/fd1az/stablecoin-engine/business/risk/app"
	"github.com/fd1az/stablecoin-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Assessor = di.NewToken[*app.Assessor]("risk.Assessor")
)

func GetAssessor(c di.ServiceRegistry) *app.Assessor {
	return di.GetToken(c, Assessor)
}
