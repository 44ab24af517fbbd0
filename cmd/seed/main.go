package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"atttracker/internal/app"
	"atttracker/internal/config"
	"atttracker/internal/logging"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("wiring failed", zap.Error(err))
	}

	cli := commandLine{
		registry:   a.Registry,
		users:      a.Users,
		timetables: a.Timetables,
		calendar:   a.Calendar,
		clock:      a.Clock,
		out:        os.Stdout,
	}
	err = cli.run(ctx, os.Args)
	a.Close()
	_ = logger.Sync()
	if err != nil {
		if err != errHelp {
			logger.Error("seed failed", zap.Error(err))
		}
		os.Exit(1)
	}
}
