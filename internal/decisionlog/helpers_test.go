package decisionlog

import (
	"time"

	"github.com/orion-triage-server/internal/domain"
)

func sampleRecord(id string, code domain.UrgencyCode, at time.Time) *domain.DecisionRecord {
	return &domain.DecisionRecord{
		ID:            id,
		Timestamp:     at,
		IdentityToken: "3f1c2a9b7d5e4f60a1b2c3d4e5f60718",
		Symptom:       "dolor toracico",
		AskedQuestions: []domain.QuestionAnswer{
			{Question: "¿El dolor comenzó de forma brusca?", Answer: "si", Type: domain.AnswerBoolean},
		},
		RuleVerdict:      domain.VerdictSummary{Code: code, Confidence: 0.9, Detail: "ECG inmediato"},
		AiVerdict:        domain.VerdictSummary{Code: code, Confidence: 0, Detail: "unavailable: disabled"},
		FinalCode:        code,
		Category:         code.Category(),
		Confidence:       0.9,
		Agreement:        true,
		Alert:            domain.AlertNone,
		Instructions:     []string{"ECG inmediato"},
		Causes:           []string{"Infarto agudo de miocardio"},
		Disposition:      code.Disposition(),
		DispositionCode:  code,
		AlternateRouting: code.AlternateRouting(),
		Observation:      "Clasificación " + string(code),
		ResourceCost:     0.0014,
		EligibilityValid: true,
	}
}
