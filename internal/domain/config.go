package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string            `mapstructure:"environment"`
	Server      ServerConfig      `mapstructure:"server"`
	Knowledge   KnowledgeConfig   `mapstructure:"knowledge"`
	Triage      TriageConfig      `mapstructure:"triage"`
	AI          AIConfig          `mapstructure:"ai"`
	DecisionLog DecisionLogConfig `mapstructure:"decision_log"`
	Forecast    ForecastConfig    `mapstructure:"forecast"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	MCP         MCPConfig         `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // requests per second per client IP, 0 disables
	RateBurst       int           `mapstructure:"rate_burst"`
}

// KnowledgeConfig locates the symptom protocol document
type KnowledgeConfig struct {
	Path string `mapstructure:"path"`
}

// TriageConfig carries the pipeline toggles handed to the orchestrator
type TriageConfig struct {
	AIEnabled           bool          `mapstructure:"ai_enabled"`
	EligibilityEnabled  bool          `mapstructure:"eligibility_enabled"`
	ThreatScreenEnabled bool          `mapstructure:"threat_screen_enabled"`
	RuleWeight          float64       `mapstructure:"rule_weight"`
	AIWeight            float64       `mapstructure:"ai_weight"`
	AITimeout           time.Duration `mapstructure:"ai_timeout"`
	IdentitySalt        string        `mapstructure:"identity_salt"`
}

// AIConfig represents the hosted generative model configuration
type AIConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   int           `mapstructure:"rate_limit"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the circuit breaker around the AI provider
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	OpenTimeout  time.Duration `mapstructure:"open_timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// DecisionLogConfig selects the decision log backend
type DecisionLogConfig struct {
	Backend      string `mapstructure:"backend"` // "memory", "sqlite", "postgres"
	SQLitePath   string `mapstructure:"sqlite_path"`
	PostgresDSN  string `mapstructure:"postgres_dsn"`
	StreamBuffer int    `mapstructure:"stream_buffer"`
}

// ForecastConfig configures the demand forecaster
type ForecastConfig struct {
	BaselineBackend   string `mapstructure:"baseline_backend"` // "file", "postgres"
	BaselinePath      string `mapstructure:"baseline_path"`
	UsageCap          int    `mapstructure:"usage_cap"`
	SeverityCacheSize int    `mapstructure:"severity_cache_size"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdle     time.Duration `mapstructure:"conn_max_idle"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
