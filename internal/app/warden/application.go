// Package warden wires configuration, API clients, the orchestrator and the
// HTTP control surface into a runnable application.
package warden

import (
	"context"
	"log/slog"
	"time"

	"github.com/aweller/gamewarden/internal/adapter/httpserver"
	"github.com/aweller/gamewarden/internal/config"
	"github.com/aweller/gamewarden/internal/infra/compute"
	"github.com/aweller/gamewarden/internal/infra/notify"
	"github.com/aweller/gamewarden/internal/infra/remotecmd"
	serveruc "github.com/aweller/gamewarden/internal/usecase/server"
)

type Application struct {
	cfg    *config.Config
	api    *httpserver.API
	logger *slog.Logger
}

func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Application {
	instances := compute.NewClient(
		cfg.Compute.BaseURL,
		cfg.Compute.APIKey,
		cfg.InstanceID,
		cfg.Waiter.Interval(),
		cfg.Waiter.Timeout(),
		logger,
	)

	commands := remotecmd.NewClient(cfg.RemoteCommand.BaseURL, cfg.RemoteCommand.APIKey, cfg.InstanceID)
	runner := remotecmd.NewRunner(commands, remotecmd.Policy{
		SendAttempts: cfg.Retry.SendAttempts,
		SendDelay:    time.Duration(cfg.Retry.SendDelaySeconds) * time.Second,
		PollAttempts: cfg.Retry.PollAttempts,
		PollDelay:    time.Duration(cfg.Retry.PollDelaySeconds) * time.Second,
		RunAttempts:  cfg.Retry.RunAttempts,
		RunDelay:     time.Duration(cfg.Retry.RunDelaySeconds) * time.Second,
	}, logger)

	orchestrator := serveruc.NewService(
		ctx,
		instances,
		runner,
		notify.NewLogNotifier(logger),
		cfg,
		serveruc.IdleSettings{
			CheckInterval:     cfg.Idle.CheckInterval(),
			ShutdownThreshold: cfg.Idle.ShutdownThreshold(),
		},
		logger,
	)

	api := httpserver.NewAPI(orchestrator, cfg, logger)

	return &Application{cfg: cfg, api: api, logger: logger}
}

// Run serves the control API until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	server := httpserver.NewServer(a.cfg.Server.Port, a.api, a.cfg.Server.Secret, a.logger)
	a.logger.Info("control api starting", "port", a.cfg.Server.Port, "instance_id", a.cfg.InstanceID)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
