package service

import (
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/domain"
	"github.com/orion-triage-server/internal/knowledge"
)

const (
	matchedRuleConfidence = 0.9
	fallbackConfidence    = 0.5
	fallbackInstruction   = "Evaluación médica necesaria"
	fallbackCause         = "Requiere valoración clínica"
	minKeywordLength      = 3
)

var (
	affirmativeExpectations = map[string]bool{"si": true, "sí": true, "yes": true}
	affirmativeAnswers      = map[string]bool{"si": true, "sí": true, "yes": true, "true": true, "1": true}
	negativeAnswers         = map[string]bool{"no": true, "false": true, "0": true}
)

// RuleClassifier assigns urgency codes by matching answers against a symptom's rule set
type RuleClassifier struct {
	index  *knowledge.Index
	logger *logrus.Logger
}

// NewRuleClassifier creates a new rule classifier over a loaded protocol index
func NewRuleClassifier(index *knowledge.Index, logger *logrus.Logger) *RuleClassifier {
	return &RuleClassifier{
		index:  index,
		logger: logger,
	}
}

// Protocol returns the protocol for an exact (normalized) symptom key.
func (rc *RuleClassifier) Protocol(symptom string) (*domain.SymptomProtocol, error) {
	p, ok := rc.index.Lookup(symptom)
	if !ok {
		return nil, domain.UnknownSymptomError(symptom)
	}
	return p, nil
}

// Symptoms lists the known root symptoms in knowledge base order.
func (rc *RuleClassifier) Symptoms() []string {
	return rc.index.Symptoms()
}

// Questions returns the mandatory questions of a symptom.
func (rc *RuleClassifier) Questions(symptom string) ([]domain.Question, error) {
	p, err := rc.Protocol(symptom)
	if err != nil {
		return nil, err
	}
	return append([]domain.Question(nil), p.Questions...), nil
}

// Recommendations returns the general recommendations of a symptom.
func (rc *RuleClassifier) Recommendations(symptom string) ([]string, error) {
	p, err := rc.Protocol(symptom)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), p.Recommendations...), nil
}

// DetectSymptom finds the main symptom in free text. The first pass looks for a
// whole symptom key inside the text; the second accepts any key word longer
// than three characters.
func (rc *RuleClassifier) DetectSymptom(text string) (string, bool) {
	folded := knowledge.Fold(text)
	symptoms := rc.index.Symptoms()

	for _, key := range symptoms {
		if strings.Contains(folded, key) {
			return key, true
		}
	}

	for _, key := range symptoms {
		for _, word := range strings.Fields(key) {
			if utf8.RuneCountInString(word) > minKeywordLength && strings.Contains(folded, word) {
				return key, true
			}
		}
	}

	return "", false
}

// Classify evaluates every rule of the symptom's protocol and keeps the firing
// rule with the highest-priority code; ties keep the first rule seen. With no
// firing rule the fallback code is assigned.
func (rc *RuleClassifier) Classify(symptom string, answers domain.Answers) (*domain.RuleVerdict, error) {
	p, err := rc.Protocol(symptom)
	if err != nil {
		return nil, err
	}

	var winner *domain.ClassificationRule
	for i := range p.Rules {
		rule := &p.Rules[i]
		if !conditionHolds(rule.Condition, answers) {
			continue
		}
		if winner == nil || rule.Code.Priority() > winner.Code.Priority() {
			winner = rule
		}
	}

	verdict := &domain.RuleVerdict{
		AskedQuestions: auditQuestions(p.Questions, answers),
	}

	if winner != nil {
		verdict.Code = winner.Code
		verdict.Instruction = winner.Instruction
		verdict.Causes = append([]string{}, winner.Causes...)
		verdict.Confidence = matchedRuleConfidence
	} else {
		verdict.Code = domain.FallbackCode
		verdict.Instruction = fallbackInstruction
		verdict.Causes = []string{fallbackCause}
		verdict.Confidence = fallbackConfidence
	}
	verdict.Category = verdict.Code.Category()

	rc.logger.WithFields(logrus.Fields{
		"symptom":    p.Symptom,
		"code":       verdict.Code,
		"confidence": verdict.Confidence,
		"matched":    winner != nil,
	}).Debug("Rule classification completed")

	return verdict, nil
}

// conditionHolds checks the first answer whose key contains the condition
// question. Only that answer decides the outcome.
func conditionHolds(cond domain.RuleCondition, answers domain.Answers) bool {
	question := knowledge.Fold(cond.Question)
	expected := knowledge.Fold(cond.ExpectedAnswer)
	if question == "" || expected == "" {
		return false
	}

	for _, ans := range answers {
		if !strings.Contains(knowledge.Fold(ans.Key), question) {
			continue
		}
		actual := knowledge.Fold(domain.AnswerText(ans.Value))
		switch {
		case affirmativeExpectations[expected]:
			return affirmativeAnswers[actual]
		case expected == "no":
			return negativeAnswers[actual]
		default:
			return strings.Contains(actual, expected)
		}
	}
	return false
}

// auditQuestions pairs every mandatory question with the caller's answer,
// looked up by question text and then by question id.
func auditQuestions(questions []domain.Question, answers domain.Answers) []domain.QuestionAnswer {
	asked := make([]domain.QuestionAnswer, 0, len(questions))
	for _, q := range questions {
		answer := domain.Unanswered
		if v, ok := answers.Get(q.Text); ok {
			answer = domain.AnswerText(v)
		} else if v, ok := answers.Get(q.ID); ok {
			answer = domain.AnswerText(v)
		}
		asked = append(asked, domain.QuestionAnswer{
			Question: q.Text,
			Answer:   answer,
			Type:     q.AnswerType,
		})
	}
	return asked
}
