package domain

import (
	"context"
	"time"
)

// AiClassifier independently classifies a symptom and answer set. Implementations
// must fail with ErrInvalidAiResponse on malformed model output rather than return
// an unvalidated verdict.
type AiClassifier interface {
	Classify(ctx context.Context, symptom string, answers Answers) (*AiVerdict, error)
}

// SeverityScorer turns a textual summary of a slot's symptoms into a positive
// clinical-severity multiplier.
type SeverityScorer interface {
	Score(ctx context.Context, summary string) (float64, error)
}

// ThreatScreen inspects raw input for attack patterns before any processing.
type ThreatScreen interface {
	Detect(text string, answers Answers) bool
}

// IdentityHasher derives a pseudonymous, salted token for audit correlation.
type IdentityHasher interface {
	Hash(patientID string, bio *Biometrics, at time.Time) string
}

// EligibilityGate admits or rejects a patient before classification.
type EligibilityGate interface {
	Enabled() bool
	Check(ctx context.Context, patientID string) (bool, error)
}

// DecisionLog is the append-only sink for decision records. Append order is
// arrival order and records are immutable once appended.
type DecisionLog interface {
	Append(ctx context.Context, record *DecisionRecord) error
	Snapshot(ctx context.Context) ([]*DecisionRecord, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// BaselineStore persists the forecaster's baseline between restarts.
type BaselineStore interface {
	SaveBaseline(ctx context.Context, baseline Baseline) error
	LoadBaseline(ctx context.Context) (Baseline, error)
}

// UsageArchive receives every usage observation for long-term storage.
type UsageArchive interface {
	ArchiveUsage(ctx context.Context, obs UsageObservation) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetTriageConfig() *TriageConfig
	GetAIConfig() *AIConfig
	GetDatabaseConfig() *DatabaseConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
