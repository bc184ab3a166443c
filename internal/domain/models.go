package domain

import (
	"maps"
	"slices"
	"time"
)

// Unanswered is recorded for mandatory questions the caller did not answer.
const Unanswered = "No respondida"

// Question is one mandatory questionnaire item of a symptom protocol.
type Question struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	AnswerType AnswerType `json:"answer_type"`
	Weight     float64    `json:"weight"`
}

// RuleCondition references a question by free text and the answer that makes the rule fire.
type RuleCondition struct {
	Question       string `json:"question"`
	ExpectedAnswer string `json:"expected_answer"`
}

// ClassificationRule belongs to exactly one SymptomProtocol.
type ClassificationRule struct {
	Code        UrgencyCode   `json:"code"`
	Condition   RuleCondition `json:"condition"`
	Instruction string        `json:"instruction"`
	Causes      []string      `json:"causes"`
}

// SymptomProtocol is the immutable knowledge-base entry for one root symptom.
// Protocols are loaded once and shared read-only by all requests.
type SymptomProtocol struct {
	Symptom         string               `json:"symptom"`
	Questions       []Question           `json:"questions"`
	Rules           []ClassificationRule `json:"rules"`
	Recommendations []string             `json:"recommendations"`
}

// QuestionAnswer is one audited (question, given answer) pair.
type QuestionAnswer struct {
	Question string     `json:"question"`
	Answer   string     `json:"answer"`
	Type     AnswerType `json:"type,omitempty"`
}

// RuleVerdict is the output of the rule classifier.
type RuleVerdict struct {
	Code           UrgencyCode      `json:"code"`
	Category       Category         `json:"category"`
	Instruction    string           `json:"instruction"`
	Causes         []string         `json:"causes"`
	AskedQuestions []QuestionAnswer `json:"asked_questions"`
	Confidence     float64          `json:"confidence"`
}

// AiVerdict is the validated output of the AI classifier.
type AiVerdict struct {
	Code            UrgencyCode `json:"code"`
	Confidence      float64     `json:"confidence"`
	Reasoning       string      `json:"reasoning"`
	Differentials   []string    `json:"differential_diagnoses"`
	Recommendations []string    `json:"recommendations"`
}

// HybridVerdict is the reconciliation of a RuleVerdict and an AiVerdict.
type HybridVerdict struct {
	Code              UrgencyCode `json:"code"`
	Category          Category    `json:"category"`
	Confidence        float64     `json:"confidence"`
	Rule              RuleVerdict `json:"rule"`
	AI                AiVerdict   `json:"ai"`
	Agreement         bool        `json:"agreement"`
	RequiresReview    bool        `json:"requires_review"`
	Alert             AlertLevel  `json:"alert_level"`
	Explanation       string      `json:"explanation"`
	CombinedReasoning string      `json:"combined_reasoning"`
	Degraded          bool        `json:"degraded"`
}

// Biometrics carries optional vital signs supplied with a patient interaction.
type Biometrics struct {
	HeartRate              *int     `json:"heart_rate,omitempty"`
	BloodPressureSystolic  *int     `json:"blood_pressure_systolic,omitempty"`
	BloodPressureDiastolic *int     `json:"blood_pressure_diastolic,omitempty"`
	OxygenSaturation       *float64 `json:"oxygen_saturation,omitempty"`
	Temperature            *float64 `json:"temperature,omitempty"`
	RespiratoryRate        *int     `json:"respiratory_rate,omitempty"`
}

// PatientInput is the raw request handed to the orchestrator.
type PatientInput struct {
	Text       string      `json:"text"`
	Answers    Answers     `json:"answers"`
	Biometrics *Biometrics `json:"biometrics,omitempty"`
	PatientID  string      `json:"patient_id,omitempty"`
}

// VerdictSummary is the compact form of a source verdict stored on a DecisionRecord.
type VerdictSummary struct {
	Code       UrgencyCode `json:"code"`
	Confidence float64     `json:"confidence"`
	Detail     string      `json:"detail"`
}

// DecisionRecord is the append-only audit entry produced once per processed interaction.
type DecisionRecord struct {
	ID               string            `json:"id"`
	Timestamp        time.Time         `json:"timestamp"`
	IdentityToken    string            `json:"identity_token"`
	Symptom          string            `json:"symptom"`
	AskedQuestions   []QuestionAnswer  `json:"asked_questions"`
	RuleVerdict      VerdictSummary    `json:"rule_verdict"`
	AiVerdict        VerdictSummary    `json:"ai_verdict"`
	FinalCode        UrgencyCode       `json:"final_code"`
	Category         Category          `json:"category"`
	Confidence       float64           `json:"confidence"`
	Agreement        bool              `json:"agreement"`
	RequiresReview   bool              `json:"requires_review"`
	Alert            AlertLevel        `json:"alert_level"`
	Instructions     []string          `json:"instructions"`
	Causes           []string          `json:"causes"`
	Disposition      Disposition       `json:"disposition"`
	DispositionCode  UrgencyCode       `json:"disposition_code"`
	AlternateRouting bool              `json:"alternate_routing"`
	Observation      string            `json:"observation"`
	ResourceCost     float64           `json:"resource_cost"`
	EligibilityValid bool              `json:"eligibility_valid"`
	ThreatDetected   bool              `json:"threat_detected"`
	HoneypotActive   bool              `json:"honeypot_activated"`
	VitalAlerts      map[string]string `json:"vital_alerts,omitempty"`
}

// LogFields returns structured logging fields for the record. The identity token
// is truncated so full tokens never reach logs.
func (r *DecisionRecord) LogFields() map[string]any {
	token := r.IdentityToken
	if len(token) > 16 {
		token = token[:16]
	}
	return map[string]any{
		"decision_id":     r.ID,
		"symptom":         r.Symptom,
		"final_code":      string(r.FinalCode),
		"confidence":      r.Confidence,
		"agreement":       r.Agreement,
		"alert_level":     string(r.Alert),
		"resource_cost":   r.ResourceCost,
		"threat_detected": r.ThreatDetected,
		"identity_prefix": token,
	}
}

// Clone returns a deep copy so snapshot readers never share slices with the log.
func (r *DecisionRecord) Clone() *DecisionRecord {
	c := *r
	c.AskedQuestions = slices.Clone(r.AskedQuestions)
	c.Instructions = slices.Clone(r.Instructions)
	c.Causes = slices.Clone(r.Causes)
	c.VitalAlerts = maps.Clone(r.VitalAlerts)
	return &c
}
