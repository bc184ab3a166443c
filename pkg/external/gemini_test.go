package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-triage-server/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func candidateBody(text string) string {
	body, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(body)
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGeminiClient(domain.AIConfig{
		BaseURL:     server.URL,
		APIKey:      "test-key",
		Model:       "test-model",
		Timeout:     2 * time.Second,
		Temperature: 0.1,
	}, nil, quietLogger())
	require.NoError(t, err)
	return client, server
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(domain.AIConfig{}, nil, quietLogger())
	assert.Error(t, err)
}

func TestGeminiClient_Classify(t *testing.T) {
	var captured geminiRequest
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, candidateBody("```json\n"+`{"codigo_triage": "d2", "confianza": 0.8, "razonamiento": "dolor intenso",
			"diagnosticos_diferenciales": ["angina"], "recomendaciones_adicionales": ["ECG"]}`+"\n```"))
	})

	answers := domain.NewAnswers("irradiacion", "si", "intensidad", 8)
	verdict, err := client.Classify(context.Background(), "dolor toracico", answers)
	require.NoError(t, err)

	assert.Equal(t, domain.CodeUrgent, verdict.Code)
	assert.Equal(t, 0.8, verdict.Confidence)
	assert.Equal(t, []string{"angina"}, verdict.Differentials)
	assert.Equal(t, []string{"ECG"}, verdict.Recommendations)

	require.Len(t, captured.Contents, 1)
	prompt := captured.Contents[0].Parts[0].Text
	assert.Contains(t, prompt, "SÍNTOMA PRINCIPAL: dolor toracico")
	assert.Contains(t, prompt, "- irradiacion: si")
	assert.Contains(t, prompt, "- intensidad: 8")
	assert.Equal(t, 0.1, captured.GenerationConfig.Temperature)
	assert.Equal(t, 1024, captured.GenerationConfig.MaxOutputTokens)
}

func TestGeminiClient_ClassifyErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		invalidResp bool
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error": {"code": 500, "message": "boom"}}`},
		{name: "quota exceeded", status: http.StatusTooManyRequests, body: `not json`},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates": []}`, invalidResp: true},
		{name: "prose answer", status: http.StatusOK, body: candidateBody("Creo que es urgente"), invalidResp: true},
		{name: "unknown code", status: http.StatusOK, body: candidateBody(`{"codigo_triage": "D9"}`), invalidResp: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			verdict, err := client.Classify(context.Background(), "fiebre", nil)
			require.Error(t, err)
			assert.Nil(t, verdict)
			assert.Equal(t, tt.invalidResp, errors.Is(err, domain.ErrInvalidAiResponse))
		})
	}
}

func TestGeminiClient_BreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 3; i++ {
		_, err := client.Classify(context.Background(), "fiebre", nil)
		require.Error(t, err)
		assert.False(t, IsBreakerOpen(err))
	}

	_, err := client.Classify(context.Background(), "fiebre", nil)
	require.Error(t, err)
	assert.True(t, IsBreakerOpen(err))
	assert.Equal(t, int32(3), hits.Load(), "open breaker must not reach the provider")
}

func TestGeminiClient_ContextCancelled(t *testing.T) {
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Classify(ctx, "fiebre", nil)
	assert.Error(t, err)
}

func TestGeminiClient_Score(t *testing.T) {
	client, _ := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, candidateBody(`{"severidad": 2.5}`))
	})

	score, err := client.Score(context.Background(), "dolor toracico; disnea")
	require.NoError(t, err)
	assert.Equal(t, 2.5, score)

	score, err = client.Score(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score, "empty summaries are not sent to the model")
}

func TestParseVerdict(t *testing.T) {
	t.Run("missing confidence defaults", func(t *testing.T) {
		v, err := ParseVerdict(`{"codigo_triage": "D1"}`)
		require.NoError(t, err)
		assert.Equal(t, domain.CodeEmergency, v.Code)
		assert.Equal(t, 0.5, v.Confidence)
		assert.NotNil(t, v.Differentials)
		assert.NotNil(t, v.Recommendations)
	})

	t.Run("confidence clamped", func(t *testing.T) {
		v, err := ParseVerdict("```\n{\"codigo_triage\": \"D3\", \"confianza\": 1.7}\n```")
		require.NoError(t, err)
		assert.Equal(t, 1.0, v.Confidence)

		v, err = ParseVerdict(`{"codigo_triage": "D7", "confianza": -0.2}`)
		require.NoError(t, err)
		assert.Equal(t, 0.0, v.Confidence)
	})

	t.Run("blocked is not a model answer", func(t *testing.T) {
		_, err := ParseVerdict(`{"codigo_triage": "BLOCKED"}`)
		assert.ErrorIs(t, err, domain.ErrInvalidAiResponse)
	})

	t.Run("empty code", func(t *testing.T) {
		_, err := ParseVerdict(`{"confianza": 0.9}`)
		assert.ErrorIs(t, err, domain.ErrInvalidAiResponse)
	})
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{`{"severidad": 1.8}`, 1.8},
		{"```json\n{\"severidad\": 0.7}\n```", 0.7},
		{"2.25", 2.25},
		{`{"severidad": 0}`, 1.0},
		{`{"severidad": -3}`, 1.0},
		{`{"severidad": 40}`, 5.0},
		{"muy grave", 1.0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSeverity(tt.in), tt.in)
	}
}

func TestVerdictKey(t *testing.T) {
	a := domain.NewAnswers("irradiacion", "si", "intensidad", 8)
	b := domain.NewAnswers("irradiacion", "si", "intensidad", 8)
	c := domain.NewAnswers("irradiacion", "no", "intensidad", 8)

	assert.Equal(t, VerdictKey("Dolor Toracico ", a), VerdictKey("dolor toracico", b))
	assert.NotEqual(t, VerdictKey("dolor toracico", a), VerdictKey("dolor toracico", c))
	assert.True(t, strings.HasPrefix(VerdictKey("fiebre", nil), verdictKeyPrefix))
}
