package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/orion-triage-server/internal/app"
	"github.com/orion-triage-server/internal/config"
	"github.com/orion-triage-server/internal/logging"
	"github.com/orion-triage-server/internal/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orion-triage mcp server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	configManager, err := config.NewManager()
	if err != nil {
		return err
	}
	if err := configManager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := configManager.GetConfig()

	// stdout carries the protocol
	if out := strings.ToLower(cfg.Logging.Output); out == "" || out == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

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

	server, err := mcp.NewServer(cfg.MCP, mcp.Services{
		Orchestrator: services.Orchestrator,
		Forecaster:   services.Forecaster,
		Decisions:    services.Decisions,
	}, logger)
	if err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil {
		return err
	}

	logger.Info("MCP server stopped")
	return nil
}
