package external

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/domain"
)

const verdictKeyPrefix = "orion:verdict:"

// VerdictCache stores AI verdicts in Redis keyed by symptom and answers.
// Cache failures are logged and treated as misses.
type VerdictCache struct {
	redis      *redis.Client
	defaultTTL time.Duration
	logger     *logrus.Logger
	now        func() time.Time
}

// CachedVerdict represents a cached AI verdict with metadata
type CachedVerdict struct {
	Data      *domain.AiVerdict `json:"data"`
	CachedAt  time.Time         `json:"cached_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// NewVerdictCache connects to Redis and verifies the connection.
func NewVerdictCache(config domain.CacheConfig, logger *logrus.Logger) (*VerdictCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := config.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &VerdictCache{
		redis:      client,
		defaultTTL: ttl,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Get returns a cached verdict. Corrupt or expired entries are removed.
func (c *VerdictCache) Get(ctx context.Context, key string) (*domain.AiVerdict, bool) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Verdict cache read failed")
		return nil, false
	}

	var cached CachedVerdict
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Data == nil {
		c.redis.Del(ctx, key)
		return nil, false
	}

	if c.now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false
	}

	return cached.Data, true
}

// Set caches a verdict for the default TTL.
func (c *VerdictCache) Set(ctx context.Context, key string, verdict *domain.AiVerdict) {
	now := c.now()
	data, err := json.Marshal(CachedVerdict{
		Data:      verdict,
		CachedAt:  now,
		ExpiresAt: now.Add(c.defaultTTL),
	})
	if err != nil {
		c.logger.WithError(err).Warn("Verdict cache encode failed")
		return
	}

	if err := c.redis.Set(ctx, key, data, c.defaultTTL).Err(); err != nil {
		c.logger.WithError(err).Warn("Verdict cache write failed")
	}
}

// Close releases the Redis connection pool.
func (c *VerdictCache) Close() error {
	return c.redis.Close()
}

// VerdictKey hashes the normalized symptom and the ordered answers.
func VerdictKey(symptom string, answers domain.Answers) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(symptom))))
	for _, a := range answers {
		fmt.Fprintf(h, "\x00%s=%s", a.Key, domain.AnswerText(a.Value))
	}
	return verdictKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
