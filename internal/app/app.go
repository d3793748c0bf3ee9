package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sensei-edu/sensei-api/internal/config"
	"github.com/sensei-edu/sensei-api/internal/health"
	"github.com/sensei-edu/sensei-api/internal/observability"
)

// BackgroundTask runs until its context is cancelled.
type BackgroundTask interface {
	Run(ctx context.Context)
}

type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	Server          *http.Server
	Observability   *observability.Runtime
	Readiness       *health.ProbeRunner
	Background      []BackgroundTask
	ShutdownTimeout time.Duration

	// Cleanup releases connections once everything else has stopped.
	Cleanup func()
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, readiness *health.ProbeRunner, background ...BackgroundTask) *App {
	a := &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		Readiness:     readiness,
		Background:    background,
	}
	if cfg != nil {
		a.ShutdownTimeout = cfg.HTTPShutdownTimeout
	}
	if a.ShutdownTimeout <= 0 {
		a.ShutdownTimeout = 15 * time.Second
	}
	return a
}

// Run serves until ctx is cancelled or the listener fails, then drains the
// server, stops background tasks and flushes telemetry.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBackground()

	var background errgroup.Group
	for _, task := range a.Background {
		background.Go(func() error {
			task.Run(bgCtx)
			return nil
		})
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	case runErr = <-serveErr:
		if runErr != nil {
			a.Logger.Error("http server failed", "error", runErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("http server shutdown failed", "error", err)
		runErr = errors.Join(runErr, err)
	}
	a.StopBackgroundTasks(stopBackground, &background)
	if err := a.Observability.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("observability shutdown failed", "error", err)
	}
	a.Logger.Info("shutdown complete")
	return runErr
}

// StopBackgroundTasks cancels background work, waits for it and runs the
// cleanup hook once.
func (a *App) StopBackgroundTasks(stop context.CancelFunc, group *errgroup.Group) {
	if stop != nil {
		stop()
	}
	if group != nil {
		_ = group.Wait()
	}
	if a.Cleanup != nil {
		a.Cleanup()
		a.Cleanup = nil
	}
}
