package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aweller/gamewarden/internal/app/warden"
	"github.com/aweller/gamewarden/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg, "gamewarden")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("starting gamewarden",
		"version", config.Version,
		"build_time", config.BuildTime,
		"instance_id", cfg.InstanceID,
	)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	app := warden.NewApplication(ctx, cfg, logger)
	if err := app.Run(ctx); err != nil && err != http.ErrServerClosed {
		logger.Error("agent exited with error", "err", err)
		os.Exit(1)
	}

	logger.Info("agent stopped cleanly")
}
