package main

import (
	"github.com/OFFIS-RIT/causeway/internal/server"
	"github.com/OFFIS-RIT/causeway/internal/util"
	"github.com/OFFIS-RIT/causeway/pkg/logger"
	"github.com/OFFIS-RIT/causeway/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleBackend(console.ConsoleBackendParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
