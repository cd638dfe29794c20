package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wguerze/websocket-app/pkg/config"
	"github.com/wguerze/websocket-app/pkg/health"
	"github.com/wguerze/websocket-app/pkg/observability"
	"github.com/wguerze/websocket-app/pkg/server"
	wstransport "github.com/wguerze/websocket-app/pkg/transport/ws"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("ws-server started", zap.String("app", cfg.AppName))
	zap.L().Info("effective configuration", zap.Any("config", cfg))

	// Liveness responder for orchestration probes. A bind failure here is
	// logged but does not stop the session service.
	if cfg.Health.Enabled {
		hr, err := health.Start(cfg.Health.Listen)
		if err != nil {
			zap.L().Error("failed to start health listener", zap.Error(err))
		} else {
			defer func() { _ = hr.Close() }()
		}
	}

	srv := server.New(cfg.Server, wstransport.NewUpgrader())
	if err := srv.Start(); err != nil {
		zap.L().Error("failed to start server", zap.Error(err))
		return 1
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	zap.L().Info("shutting down", zap.String("signal", s.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("sessions still open after grace period", zap.Error(err))
		return 1
	}
	zap.L().Info("shutdown complete")
	return 0
}
