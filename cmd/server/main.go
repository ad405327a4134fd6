package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/moodcycle/internal/logging"
	"github.com/dmitrijs2005/moodcycle/internal/server"
	"github.com/dmitrijs2005/moodcycle/internal/server/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
