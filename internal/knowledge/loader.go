// Package knowledge loads the symptom protocol document and indexes it by
// normalized root symptom.
package knowledge

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/orion-triage-server/internal/domain"
)

type questionDoc struct {
	ID         string  `json:"id"`
	Text       string  `json:"pregunta"`
	AnswerType string  `json:"tipo_respuesta"`
	Weight     float64 `json:"peso"`
}

type conditionDoc struct {
	Question       string `json:"pregunta"`
	ExpectedAnswer string `json:"respuesta_esperada"`
}

type ruleDoc struct {
	Code        string       `json:"codigo_triage"`
	Condition   conditionDoc `json:"condiciones"`
	Instruction string       `json:"instruccion_atencion"`
	Causes      []string     `json:"posibles_causas"`
}

type protocolDoc struct {
	Symptom         string        `json:"sintoma_raiz"`
	Questions       []questionDoc `json:"preguntas_obligatorias"`
	Recommendations []string      `json:"recomendaciones"`
	Rules           []ruleDoc     `json:"reglas_clasificacion"`
}

// Normalize folds a symptom key for exact lookup: NFC, lower case, trimmed.
func Normalize(s string) string {
	return strings.TrimSpace(Fold(s))
}

// Fold lower-cases s in NFC form without trimming. Substring matching over
// answers and free text uses Fold so that surrounding whitespace stays significant.
func Fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// Load reads and parses the knowledge base file at path.
func Load(path string) ([]domain.SymptomProtocol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening knowledge base: %w", err)
	}
	defer f.Close()

	protocols, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return protocols, nil
}

// Parse decodes a knowledge base document. Symptom keys are normalized and rule
// codes are validated against the urgency table.
func Parse(r io.Reader) ([]domain.SymptomProtocol, error) {
	var docs []protocolDoc
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decoding knowledge base: %w", err)
	}

	protocols := make([]domain.SymptomProtocol, 0, len(docs))
	for i, doc := range docs {
		p, err := doc.toProtocol()
		if err != nil {
			return nil, fmt.Errorf("protocol %d: %w", i, err)
		}
		protocols = append(protocols, p)
	}
	return protocols, nil
}

func (d protocolDoc) toProtocol() (domain.SymptomProtocol, error) {
	symptom := Normalize(d.Symptom)
	if symptom == "" {
		return domain.SymptomProtocol{}, domain.NewValidationError("sintoma_raiz", "root symptom is required", d.Symptom)
	}

	p := domain.SymptomProtocol{
		Symptom:         symptom,
		Questions:       make([]domain.Question, 0, len(d.Questions)),
		Rules:           make([]domain.ClassificationRule, 0, len(d.Rules)),
		Recommendations: append([]string{}, d.Recommendations...),
	}

	for _, q := range d.Questions {
		p.Questions = append(p.Questions, domain.Question{
			ID:         q.ID,
			Text:       q.Text,
			AnswerType: answerType(q.AnswerType),
			Weight:     q.Weight,
		})
	}

	for _, r := range d.Rules {
		code, err := domain.ParseUrgencyCode(strings.ToUpper(strings.TrimSpace(r.Code)))
		if err != nil {
			return domain.SymptomProtocol{}, fmt.Errorf("symptom %q: %w", symptom, err)
		}
		p.Rules = append(p.Rules, domain.ClassificationRule{
			Code: code,
			Condition: domain.RuleCondition{
				Question:       r.Condition.Question,
				ExpectedAnswer: r.Condition.ExpectedAnswer,
			},
			Instruction: r.Instruction,
			Causes:      append([]string{}, r.Causes...),
		})
	}

	return p, nil
}

func answerType(raw string) domain.AnswerType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "si_no", "boolean", "bool":
		return domain.AnswerBoolean
	case "valor", "numeric", "number":
		return domain.AnswerNumeric
	default:
		return domain.AnswerCategorical
	}
}
