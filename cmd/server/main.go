package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/api"
	"github.com/orion-triage-server/internal/app"
	"github.com/orion-triage-server/internal/config"
	"github.com/orion-triage-server/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orion-triage server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		return err
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := configManager.GetConfig()
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	if configManager.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release resources")
		}
	}()

	server, err := api.NewServer(cfg.Server, api.Services{
		Orchestrator: services.Orchestrator,
		Forecaster:   services.Forecaster,
		Decisions:    services.Decisions,
		Broadcaster:  services.Broadcaster,
	}, logger)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting triage server")

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
