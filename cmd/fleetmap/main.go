package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lcalzada-xor/fleetmap/internal/app"
	"github.com/lcalzada-xor/fleetmap/internal/config"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
	"github.com/lcalzada-xor/fleetmap/internal/telemetry"
)

func main() {
	// load config
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		os.Exit(2)
	}

	if err := logger.Init(cfg.Log); err != nil {
		logger.Error().Err(err).Msg("Failed to init logger")
	}

	// Initialize Tracing
	shutdownTracer, err := telemetry.InitTracer(cfg.Trace, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to init tracer")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("Failed to shutdown tracer")
			}
		}()
	}

	// Initialize Application
	application, err := app.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	// Root Context with cancellation on Interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info().Bool("mock", cfg.MockMode).Msg("Fleetmap starting")

	// Run Application
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("Application error")
		cancel()
	}
}
