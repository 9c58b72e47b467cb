package main

import (
	"asset_lending_tool/app"
	"asset_lending_tool/config"
	"asset_lending_tool/routes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}
	application := app.MustNew(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := app.BootstrapOrganization(ctx, cfg, application.Repo, logger); err != nil {
		logger.Error("bootstrap", "err", err)
	}
	if cfg.SweepInterval > 0 {
		go application.Sweep.Every(ctx, cfg.SweepInterval, application.Engine.Today)
	}

	routes.RegisterRoutes(application.Router, application)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: application.Router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	logger.Info("listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve", "err", err)
	}
}
