package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/orion-triage-server/internal/decisionlog"
	"github.com/orion-triage-server/internal/domain"
)

// Forecast baseline backends
const (
	BaselineFile     = "file"
	BaselinePostgres = "postgres"
)

var _ domain.ConfigManager = (*Manager)(nil)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// LoadDotEnv exports the variables of the given .env files (default ".env")
// into the process environment. Missing files are ignored and variables that
// are already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}
	return nil
}

// FileEnvVar names an explicit config file for NewManager.
const FileEnvVar = "ORION_CONFIG_FILE"

// NewManager creates a new configuration manager. It reads the file named by
// ORION_CONFIG_FILE, or searches the default locations for config.yaml.
func NewManager() (*Manager, error) {
	return NewManagerFromFile(os.Getenv(FileEnvVar))
}

// NewManagerFromFile loads an explicit config file. An empty path falls back
// to the default search locations.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/orion-triage/")
	}

	v.SetEnvPrefix("ORION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Defaults and environment variables are enough to run
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)

	v.SetDefault("knowledge.path", "data/knowledge_base.json")

	// Triage pipeline defaults
	v.SetDefault("triage.ai_enabled", false)
	v.SetDefault("triage.eligibility_enabled", false)
	v.SetDefault("triage.threat_screen_enabled", true)
	v.SetDefault("triage.rule_weight", 0.4)
	v.SetDefault("triage.ai_weight", 0.6)
	v.SetDefault("triage.ai_timeout", "15s")
	v.SetDefault("triage.identity_salt", "")

	// AI provider defaults
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gemini-2.0-flash-exp")
	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("ai.rate_limit", 5)
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.breaker.max_requests", 5)
	v.SetDefault("ai.breaker.interval", "30s")
	v.SetDefault("ai.breaker.open_timeout", "60s")
	v.SetDefault("ai.breaker.min_requests", 3)
	v.SetDefault("ai.breaker.failure_ratio", 0.6)

	v.SetDefault("decision_log.backend", decisionlog.BackendMemory)
	v.SetDefault("decision_log.sqlite_path", "data/decisions.db")
	v.SetDefault("decision_log.postgres_dsn", "")
	v.SetDefault("decision_log.stream_buffer", 16)

	v.SetDefault("forecast.baseline_backend", BaselineFile)
	v.SetDefault("forecast.baseline_path", "data/baseline.json")
	v.SetDefault("forecast.usage_cap", 100)
	v.SetDefault("forecast.severity_cache_size", 256)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "orion_triage")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	// Cache defaults; an empty URL disables the verdict cache
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.filename", "")

	v.SetDefault("mcp.server_name", "orion-triage")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetTriageConfig returns the pipeline toggles
func (m *Manager) GetTriageConfig() *domain.TriageConfig {
	return &m.config.Triage
}

// GetAIConfig returns the AI provider configuration
func (m *Manager) GetAIConfig() *domain.AIConfig {
	return &m.config.AI
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return domain.NewValidationError("server.port", "port must be between 1 and 65535", config.Server.Port)
	}

	if strings.TrimSpace(config.Knowledge.Path) == "" {
		return domain.NewValidationError("knowledge.path", "knowledge base path is required", config.Knowledge.Path)
	}

	t := config.Triage
	if t.RuleWeight < 0 || t.AIWeight < 0 || math.Abs(t.RuleWeight+t.AIWeight-1.0) > 1e-9 {
		return domain.NewValidationError("triage.rule_weight",
			"rule and AI weights must be non-negative and sum to 1.0",
			fmt.Sprintf("%.4f/%.4f", t.RuleWeight, t.AIWeight))
	}

	if t.AIEnabled && config.AI.APIKey == "" {
		return domain.NewValidationError("ai.api_key", "an API key is required when AI is enabled", "")
	}

	switch config.DecisionLog.Backend {
	case decisionlog.BackendMemory, decisionlog.BackendSQLite:
	case decisionlog.BackendPostgres:
		if config.DecisionLog.PostgresDSN == "" {
			return domain.NewValidationError("decision_log.postgres_dsn",
				"a DSN is required for the postgres backend", "")
		}
	default:
		return domain.NewValidationError("decision_log.backend",
			"backend must be memory, sqlite or postgres", config.DecisionLog.Backend)
	}

	switch config.Forecast.BaselineBackend {
	case BaselineFile:
		if config.Forecast.BaselinePath == "" {
			return domain.NewValidationError("forecast.baseline_path", "baseline path is required", "")
		}
	case BaselinePostgres:
		if config.Database.Host == "" || config.Database.Database == "" {
			return domain.NewValidationError("database.host", "database host and name are required", config.Database.Host)
		}
	default:
		return domain.NewValidationError("forecast.baseline_backend",
			"baseline backend must be file or postgres", config.Forecast.BaselineBackend)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "warning": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return domain.NewValidationError("logging.level", "invalid log level", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
