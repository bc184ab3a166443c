package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/orion-triage-server/internal/domain"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	defaultGeminiModel   = "gemini-2.0-flash-exp"
	defaultConfidence    = 0.5
	defaultSeverity      = 1.0
	maxSeverity          = 5.0
	maxResponseBytes     = 1 << 20
)

// GeminiClient classifies symptoms and scores batch severity through the
// Gemini generateContent REST endpoint.
type GeminiClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	cache       *VerdictCache
	logger      *logrus.Logger
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// verdictDoc is the JSON shape the model is asked to answer with.
type verdictDoc struct {
	Code            string   `json:"codigo_triage"`
	Confidence      *float64 `json:"confianza"`
	Reasoning       string   `json:"razonamiento"`
	Differentials   []string `json:"diagnosticos_diferenciales"`
	Recommendations []string `json:"recomendaciones_adicionales"`
}

type severityDoc struct {
	Severity float64 `json:"severidad"`
}

// NewGeminiClient creates a Gemini client. The cache is optional.
func NewGeminiClient(config domain.AIConfig, cache *VerdictCache, logger *logrus.Logger) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini client requires an API key")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultGeminiBaseURL
	}
	if config.Model == "" {
		config.Model = defaultGeminiModel
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &GeminiClient{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		httpClient:  &http.Client{Timeout: config.Timeout},
		limiter:     rate.NewLimiter(limit, 1),
		breaker:     newBreaker("gemini", config.Breaker, logger),
		cache:       cache,
		logger:      logger,
	}, nil
}

// Classify asks the model for an independent urgency code. Malformed output is
// reported as ErrInvalidAiResponse.
func (c *GeminiClient) Classify(ctx context.Context, symptom string, answers domain.Answers) (*domain.AiVerdict, error) {
	key := VerdictKey(symptom, answers)
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok {
			c.logger.WithField("symptom", symptom).Debug("AI verdict served from cache")
			return cached, nil
		}
	}

	text, err := c.generate(ctx, classificationPrompt(symptom, answers))
	if err != nil {
		return nil, err
	}

	verdict, err := ParseVerdict(text)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(ctx, key, verdict)
	}
	return verdict, nil
}

// Score rates the clinical severity of a slot summary. The result is always
// within (0, 5]; unusable answers score the neutral 1.0.
func (c *GeminiClient) Score(ctx context.Context, summary string) (float64, error) {
	if strings.TrimSpace(summary) == "" {
		return defaultSeverity, nil
	}

	text, err := c.generate(ctx, severityPrompt(summary))
	if err != nil {
		return 0, err
	}
	return ParseSeverity(text), nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *GeminiClient) post(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.temperature,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: c.maxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed geminiResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			return "", fmt.Errorf("gemini API error %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("gemini API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", domain.InvalidAiResponseError("response envelope is not JSON")
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", domain.InvalidAiResponseError("response has no candidates")
	}

	var b strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), nil
}

// ParseVerdict decodes the model's JSON answer, tolerating markdown fences.
// The code must name a known urgency level; a missing confidence becomes 0.5
// and any other value is clamped to [0, 1].
func ParseVerdict(text string) (*domain.AiVerdict, error) {
	var doc verdictDoc
	if err := json.Unmarshal([]byte(stripFences(text)), &doc); err != nil {
		return nil, domain.InvalidAiResponseError("model output is not JSON")
	}

	code, err := domain.ParseUrgencyCode(strings.ToUpper(strings.TrimSpace(doc.Code)))
	if err != nil {
		return nil, domain.InvalidAiResponseError(fmt.Sprintf("unknown urgency code %q", doc.Code))
	}

	confidence := defaultConfidence
	if doc.Confidence != nil && !math.IsNaN(*doc.Confidence) {
		confidence = math.Max(0, math.Min(1, *doc.Confidence))
	}

	verdict := &domain.AiVerdict{
		Code:            code,
		Confidence:      confidence,
		Reasoning:       doc.Reasoning,
		Differentials:   doc.Differentials,
		Recommendations: doc.Recommendations,
	}
	if verdict.Differentials == nil {
		verdict.Differentials = []string{}
	}
	if verdict.Recommendations == nil {
		verdict.Recommendations = []string{}
	}
	return verdict, nil
}

// ParseSeverity reads a severity multiplier from either {"severidad": x} or a
// bare number. Anything else yields 1.0.
func ParseSeverity(text string) float64 {
	cleaned := stripFences(text)

	var doc severityDoc
	value := 0.0
	if err := json.Unmarshal([]byte(cleaned), &doc); err == nil {
		value = doc.Severity
	} else if f, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64); err == nil {
		value = f
	}

	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return defaultSeverity
	}
	return math.Min(value, maxSeverity)
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func classificationPrompt(symptom string, answers domain.Answers) string {
	var b strings.Builder
	b.WriteString("Eres un médico de urgencias experto en triaje hospitalario. ")
	b.WriteString("Analiza el siguiente caso y asigna un código de triaje.\n\n")
	fmt.Fprintf(&b, "SÍNTOMA PRINCIPAL: %s\n\n", symptom)
	b.WriteString("RESPUESTAS DEL PACIENTE:\n")
	for _, a := range answers {
		fmt.Fprintf(&b, "- %s: %s\n", a.Key, domain.AnswerText(a.Value))
	}
	b.WriteString(`
CÓDIGOS DE TRIAJE:
- D1 (Emergencia): riesgo vital inmediato. Ej: infarto, ictus, shock.
- D2 (Urgente): requiere atención en menos de 30 minutos. Ej: dolor intenso, fiebre alta con signos de alarma.
- D7 (Consulta preferente): valoración en el día, sin riesgo vital. Ej: infección leve, dolor moderado.
- D3 (Consulta programada): puede esperar a una cita ordinaria. Ej: síntomas crónicos estables.

Responde ÚNICAMENTE con un objeto JSON con este formato:
{
  "codigo_triage": "D1|D2|D7|D3",
  "confianza": 0.0-1.0,
  "razonamiento": "explicación clínica breve",
  "diagnosticos_diferenciales": ["diagnóstico 1", "diagnóstico 2"],
  "recomendaciones_adicionales": ["recomendación 1"]
}

Sé conservador: en caso de duda, escala al código más grave.`)
	return b.String()
}

func severityPrompt(summary string) string {
	return "Eres un médico de urgencias. Estos son los síntomas registrados en una franja horaria:\n\n" +
		summary +
		"\n\nEstima la gravedad clínica media del conjunto como un multiplicador entre 0.5 (leve) y 3.0 (crítico). " +
		`Responde ÚNICAMENTE con un objeto JSON: {"severidad": <número>}`
}

// IsBreakerOpen reports whether err came from an open or saturated breaker.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
