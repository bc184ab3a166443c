// Package app assembles the triage pipeline and the forecaster from a loaded
// configuration. Every command builds its services through New.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/config"
	"github.com/orion-triage-server/internal/database"
	"github.com/orion-triage-server/internal/decisionlog"
	"github.com/orion-triage-server/internal/domain"
	"github.com/orion-triage-server/internal/forecast"
	"github.com/orion-triage-server/internal/knowledge"
	"github.com/orion-triage-server/internal/repository"
	"github.com/orion-triage-server/internal/safeguard"
	"github.com/orion-triage-server/internal/service"
	"github.com/orion-triage-server/pkg/external"
)

// App owns the long-lived services and the resources behind them.
type App struct {
	Orchestrator *service.Orchestrator
	Forecaster   *forecast.Forecaster
	Decisions    decisionlog.Store
	Broadcaster  *decisionlog.Broadcaster

	closers []func() error
	logger  *logrus.Logger
}

// New wires every component selected by cfg. The verdict cache and the AI
// client are optional: a cache that cannot connect is skipped with a warning.
func New(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (*App, error) {
	a := &App{logger: logger}

	if err := a.build(ctx, cfg); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to release resources after startup error")
		}
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *domain.Config) error {
	index, err := knowledge.LoadIndex(cfg.Knowledge.Path)
	if err != nil {
		return fmt.Errorf("failed to load knowledge base: %w", err)
	}
	a.logger.WithFields(logrus.Fields{
		"path":     cfg.Knowledge.Path,
		"symptoms": index.Len(),
	}).Info("Knowledge base loaded")

	decisions, err := decisionlog.Open(cfg.DecisionLog)
	if err != nil {
		return fmt.Errorf("failed to open decision log: %w", err)
	}
	a.Decisions = decisions
	a.closers = append(a.closers, decisions.Close)

	a.Broadcaster = decisionlog.NewBroadcaster(cfg.DecisionLog.StreamBuffer, a.logger)
	a.closers = append(a.closers, func() error {
		a.Broadcaster.Close()
		return nil
	})

	gemini, err := a.buildGemini(cfg)
	if err != nil {
		return err
	}

	validator, err := service.NewCrossValidator(cfg.Triage.RuleWeight, cfg.Triage.AIWeight)
	if err != nil {
		return err
	}

	deps := service.OrchestratorDeps{
		Classifier: service.NewRuleClassifier(index, a.logger),
		Validator:  validator,
		Screen:     safeguard.NewPatternScreen(),
		Hasher:     safeguard.NewSaltedHasher(cfg.Triage.IdentitySalt),
		Gate:       safeguard.NewPassThroughGate(cfg.Triage.EligibilityEnabled),
		Log:        decisions,
		Publisher:  a.Broadcaster,
	}
	if gemini != nil {
		deps.AI = gemini
	}

	a.Orchestrator, err = service.NewOrchestrator(deps, service.OrchestratorConfig{
		AIEnabled:           cfg.Triage.AIEnabled,
		ThreatScreenEnabled: cfg.Triage.ThreatScreenEnabled,
		AITimeout:           cfg.Triage.AITimeout,
	}, a.logger)
	if err != nil {
		return err
	}

	fdeps, err := a.forecastDeps(ctx, cfg)
	if err != nil {
		return err
	}
	if gemini != nil {
		fdeps.Scorer = gemini
	}

	a.Forecaster, err = forecast.NewForecaster(fdeps, cfg.Forecast, a.logger)
	if err != nil {
		return err
	}
	return a.Forecaster.Load(ctx)
}

// buildGemini returns nil when no API key is configured.
func (a *App) buildGemini(cfg *domain.Config) (*external.GeminiClient, error) {
	if cfg.AI.APIKey == "" {
		if cfg.Triage.AIEnabled {
			a.logger.Warn("AI classification enabled without an API key, running rules only")
		}
		return nil, nil
	}

	var cache *external.VerdictCache
	if cfg.Cache.RedisURL != "" {
		c, err := external.NewVerdictCache(cfg.Cache, a.logger)
		if err != nil {
			a.logger.WithError(err).Warn("Verdict cache unavailable, continuing without it")
		} else {
			cache = c
			a.closers = append(a.closers, c.Close)
		}
	}

	client, err := external.NewGeminiClient(cfg.AI, cache, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}
	return client, nil
}

func (a *App) forecastDeps(ctx context.Context, cfg *domain.Config) (forecast.Deps, error) {
	switch cfg.Forecast.BaselineBackend {
	case config.BaselinePostgres:
		db, err := database.NewConnection(ctx, cfg.Database, a.logger)
		if err != nil {
			return forecast.Deps{}, err
		}
		a.closers = append(a.closers, func() error {
			db.Close()
			return nil
		})
		repo := repository.NewForecastRepository(db.Pool, a.logger)
		return forecast.Deps{Store: repo, Archive: repo}, nil
	default:
		store, err := forecast.NewFileBaselineStore(cfg.Forecast.BaselinePath)
		if err != nil {
			return forecast.Deps{}, err
		}
		return forecast.Deps{Store: store}, nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
