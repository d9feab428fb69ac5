package main

import (
	"os"

	"github.com/joho/godotenv"

	"smart_mailbox/config"
	"smart_mailbox/internal/cli"
	"smart_mailbox/pkg/logger"
)

func main() {
	// Load .env file if exists (for local development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if cfg.IsDevelopment() && os.Getenv("LOG_LEVEL") == "" {
		level = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   level,
		Output:  os.Stderr,
		Service: "smart-mailbox",
		Pretty:  !cfg.IsProduction(),
	})

	cli.Execute(cfg)
}
