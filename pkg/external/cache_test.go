package external

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/orion-triage-server/internal/domain"
)

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s/0", endpoint)
}

func TestVerdictCache_RoundTrip(t *testing.T) {
	url := startRedis(t)

	cache, err := NewVerdictCache(domain.CacheConfig{RedisURL: url, DefaultTTL: time.Minute}, quietLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	key := VerdictKey("fiebre", domain.NewAnswers("temperatura", 39.5))

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	cache.Set(ctx, key, &domain.AiVerdict{Code: domain.CodeUrgent, Confidence: 0.7, Differentials: []string{"gripe"}})

	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUrgent, got.Code)
	assert.Equal(t, []string{"gripe"}, got.Differentials)

	cache.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, ok = cache.Get(ctx, key)
	assert.False(t, ok, "entries past their expiry are dropped")
}

func TestVerdictCache_CorruptEntry(t *testing.T) {
	url := startRedis(t)

	cache, err := NewVerdictCache(domain.CacheConfig{RedisURL: url}, quietLogger())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	require.NoError(t, cache.redis.Set(ctx, "orion:verdict:bad", "{broken", time.Minute).Err())

	_, ok := cache.Get(ctx, "orion:verdict:bad")
	assert.False(t, ok)

	exists, err := cache.redis.Exists(ctx, "orion:verdict:bad").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestNewVerdictCache_BadURL(t *testing.T) {
	_, err := NewVerdictCache(domain.CacheConfig{RedisURL: "not-a-url"}, quietLogger())
	assert.Error(t, err)
}

func TestGeminiClient_ServesFromCache(t *testing.T) {
	url := startRedis(t)

	cache, err := NewVerdictCache(domain.CacheConfig{RedisURL: url, DefaultTTL: time.Minute}, quietLogger())
	require.NoError(t, err)
	defer cache.Close()

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		io.WriteString(w, candidateBody(`{"codigo_triage": "D7", "confianza": 0.6}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(domain.AIConfig{BaseURL: server.URL, APIKey: "k"}, cache, quietLogger())
	require.NoError(t, err)

	answers := domain.NewAnswers("fiebre", "si")
	for i := 0; i < 2; i++ {
		v, err := client.Classify(context.Background(), "cefalea", answers)
		require.NoError(t, err)
		assert.Equal(t, domain.CodeLowComplexity, v.Code)
	}
	assert.Equal(t, 1, hits)
}
