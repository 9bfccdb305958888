package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"farmacia/m/internal/cli"
	"farmacia/m/internal/config"
	"farmacia/m/internal/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Setup(cfg.LoggerConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "logger setup: %v, using defaults\n", err)
		_ = logger.Setup(logger.DefaultConfig())
	}

	cli.Execute(cfg)
}
