package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-triage-server/internal/domain"
)

func testConfig(t *testing.T) *domain.Config {
	return &domain.Config{
		Knowledge: domain.KnowledgeConfig{Path: "../knowledge/testdata/knowledge_base.json"},
		Triage: domain.TriageConfig{
			ThreatScreenEnabled: true,
			RuleWeight:          0.4,
			AIWeight:            0.6,
		},
		DecisionLog: domain.DecisionLogConfig{Backend: "memory", StreamBuffer: 4},
		Forecast: domain.ForecastConfig{
			BaselineBackend: "file",
			BaselinePath:    filepath.Join(t.TempDir(), "baseline.json"),
		},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNew_RulesOnly(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), quietLogger())
	require.NoError(t, err)
	defer a.Close()

	feed, cancel := a.Broadcaster.Subscribe()
	defer cancel()

	record, err := a.Orchestrator.Process(ctx, domain.PatientInput{
		Text:    "dolor toracico",
		Answers: domain.NewAnswers("irradiacion", "si"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.UrgencyCode("D1"), record.FinalCode)
	assert.Contains(t, record.AiVerdict.Detail, "unavailable")

	published := <-feed
	assert.Equal(t, record.ID, published.ID)

	count, err := a.Decisions.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.Empty(t, a.Forecaster.Baseline())
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *domain.Config)
	}{
		{"missing knowledge base", func(cfg *domain.Config) { cfg.Knowledge.Path = "does/not/exist.json" }},
		{"unknown decision log backend", func(cfg *domain.Config) { cfg.DecisionLog.Backend = "cassandra" }},
		{"weights do not sum to one", func(cfg *domain.Config) { cfg.Triage.AIWeight = 0.9 }},
		{"missing baseline path", func(cfg *domain.Config) { cfg.Forecast.BaselinePath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := New(context.Background(), cfg, quietLogger())
			assert.Error(t, err)
		})
	}
}

func TestNew_WithAIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Triage.AIEnabled = true
	cfg.AI.APIKey = "test-key"
	cfg.AI.BaseURL = "http://127.0.0.1:1"

	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	// The unreachable provider degrades the decision to rules only.
	record, err := a.Orchestrator.Process(context.Background(), domain.PatientInput{Text: "cefalea"})
	require.NoError(t, err)
	assert.Equal(t, domain.UrgencyCode("D3"), record.FinalCode)
	assert.Contains(t, record.AiVerdict.Detail, "unavailable")
}
