package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-triage-server/internal/domain"
)

func TestNew_LevelAndFormat(t *testing.T) {
	logger, err := New(domain.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stderr, logger.Out)

	logger, err = New(domain.LoggingConfig{Level: "nonsense"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "orion.log")

	logger, err := New(domain.LoggingConfig{Level: "info", Format: "json", Output: "file", Filename: path})
	require.NoError(t, err)

	logger.WithField("symptom", "cefalea").Info("Triage decision recorded")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "Triage decision recorded", entry["message"])
	assert.Equal(t, "cefalea", entry["symptom"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_InvalidOutput(t *testing.T) {
	_, err := New(domain.LoggingConfig{Output: "syslog"})
	assert.Error(t, err)

	_, err = New(domain.LoggingConfig{Output: "file"})
	assert.Error(t, err)
}
