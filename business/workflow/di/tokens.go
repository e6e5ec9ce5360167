// Package di contains dependency injection tokens for the workflow context.
package di

import (
	"github.com/fd1az/stablecoin-engine/business/workflow/app"
	"github.com/fd1az/stablecoin-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Commands = di.NewToken[*app.Commands]("workflow.Commands")
	Sweeper  = di.NewToken[*app.Sweeper]("workflow.Sweeper")
)

// Private dependency tokens - internal to workflow module
var (
	Orchestrator = di.NewToken[*app.Orchestrator]("workflow:orchestrator")
	Archive      = di.NewToken[app.Archive]("workflow:archive")
	Pool         = di.NewToken[*app.Pool]("workflow:pool")
	Sagas        = di.NewToken[*app.Sagas]("workflow:sagas")
)

func GetCommands(c di.ServiceRegistry) *app.Commands {
	return di.GetToken(c, Commands)
}

func GetSweeper(c di.ServiceRegistry) *app.Sweeper {
	return di.GetToken(c, Sweeper)
}

func GetOrchestrator(c di.ServiceRegistry) *app.Orchestrator {
	return di.GetToken(c, Orchestrator)
}

func GetArchive(c di.ServiceRegistry) app.Archive {
	return di.GetToken(c, Archive)
}

func GetPool(c di.ServiceRegistry) *app.Pool {
	return di.GetToken(c, Pool)
}

func GetSagas(c di.ServiceRegistry) *app.Sagas {
	return di.GetToken(c, Sagas)
}
