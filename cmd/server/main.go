package main

import (
	"github.com/drivetrace/backend/internal/config"
	"github.com/drivetrace/backend/internal/server"
	"github.com/drivetrace/backend/internal/util"
	"github.com/drivetrace/backend/pkg/logger"
	"github.com/drivetrace/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{})
		logger.Init(consoleLogger)
		logger.Fatal("Invalid configuration", "err", err)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
	})
	logger.Init(consoleLogger)

	server.Init(cfg)
}
