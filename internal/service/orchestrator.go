package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/domain"
	"github.com/orion-triage-server/internal/safeguard"
)

// Resource cost components of a processed decision.
const (
	BaseCost             = 0.001
	PerQuestionCost      = 0.0001
	AISurcharge          = 0.005
	EligibilitySurcharge = 0.002
)

const (
	blockedIdentity   = "HONEYPOT_REDIRECT"
	blockedSymptom    = "THREAT_DETECTED"
	maxObservedCauses = 3
)

// OrchestratorConfig carries the pipeline toggles. Components never read
// configuration on their own.
type OrchestratorConfig struct {
	AIEnabled           bool
	ThreatScreenEnabled bool
	AITimeout           time.Duration
}

// RecordPublisher receives every appended record, e.g. for live streaming.
type RecordPublisher interface {
	Publish(record *domain.DecisionRecord)
}

// Orchestrator sequences detection, screening, gating, hashing, classification
// and logging into one decision per call.
type Orchestrator struct {
	classifier *RuleClassifier
	validator  *CrossValidator
	ai         domain.AiClassifier
	screen     domain.ThreatScreen
	hasher     domain.IdentityHasher
	gate       domain.EligibilityGate
	log        domain.DecisionLog
	publisher  RecordPublisher
	config     OrchestratorConfig
	logger     *logrus.Logger

	now   func() time.Time
	newID func() string
}

// OrchestratorDeps groups the collaborators of an Orchestrator. AI and
// Publisher are optional.
type OrchestratorDeps struct {
	Classifier *RuleClassifier
	Validator  *CrossValidator
	AI         domain.AiClassifier
	Screen     domain.ThreatScreen
	Hasher     domain.IdentityHasher
	Gate       domain.EligibilityGate
	Log        domain.DecisionLog
	Publisher  RecordPublisher
}

// NewOrchestrator creates a new decision orchestrator
func NewOrchestrator(deps OrchestratorDeps, config OrchestratorConfig, logger *logrus.Logger) (*Orchestrator, error) {
	if deps.Classifier == nil || deps.Screen == nil || deps.Hasher == nil || deps.Gate == nil || deps.Log == nil {
		return nil, fmt.Errorf("orchestrator requires classifier, threat screen, hasher, eligibility gate and decision log")
	}
	validator := deps.Validator
	if validator == nil {
		validator = DefaultCrossValidator()
	}
	if config.AITimeout <= 0 {
		config.AITimeout = 15 * time.Second
	}

	return &Orchestrator{
		classifier: deps.Classifier,
		validator:  validator,
		ai:         deps.AI,
		screen:     deps.Screen,
		hasher:     deps.Hasher,
		gate:       deps.Gate,
		log:        deps.Log,
		publisher:  deps.Publisher,
		config:     config,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

// Classifier exposes the rule classifier for catalogue queries.
func (o *Orchestrator) Classifier() *RuleClassifier {
	return o.classifier
}

// Process runs the full pipeline for one patient interaction. Detection and
// eligibility failures return an error and write nothing; a detected threat
// always produces a BLOCKED record.
func (o *Orchestrator) Process(ctx context.Context, input domain.PatientInput) (*domain.DecisionRecord, error) {
	startTime := o.now()

	// Step 1: Screen raw input before anything else touches it
	if o.config.ThreatScreenEnabled && o.screen.Detect(input.Text, input.Answers) {
		return o.block(ctx, startTime)
	}

	// Step 2: Detect the main symptom
	symptom, ok := o.classifier.DetectSymptom(input.Text)
	if !ok {
		return nil, domain.NoSymptomDetectedError(input.Text)
	}
	o.logger.WithField("symptom", symptom).Debug("Symptom detected")

	// Step 3: Eligibility gate
	gateRan := false
	eligible := true
	if o.gate.Enabled() {
		passed, err := o.gate.Check(ctx, input.PatientID)
		if err != nil {
			return nil, fmt.Errorf("eligibility check: %w", err)
		}
		if !passed {
			return nil, domain.EligibilityDeniedError()
		}
		gateRan = true
	}

	// Step 4: Pseudonymous identity token
	token := o.hasher.Hash(input.PatientID, input.Biometrics, startTime)

	// Step 5: Classify; the rule verdict carries the mandatory question audit
	rule, err := o.classifier.Classify(symptom, input.Answers)
	if err != nil {
		return nil, err
	}
	asked := rule.AskedQuestions
	hybrid, aiRan := o.classify(ctx, symptom, input.Answers, *rule)

	// Step 6: Disposition and alternate routing
	final := hybrid.Code

	// Step 7: Resource cost
	cost := ResourceCost(len(asked), aiRan, gateRan)

	// Step 8: Assemble and append
	record := &domain.DecisionRecord{
		ID:             o.newID(),
		Timestamp:      startTime,
		IdentityToken:  token,
		Symptom:        symptom,
		AskedQuestions: asked,
		RuleVerdict: domain.VerdictSummary{
			Code:       rule.Code,
			Confidence: rule.Confidence,
			Detail:     rule.Instruction,
		},
		AiVerdict: domain.VerdictSummary{
			Code:       hybrid.AI.Code,
			Confidence: hybrid.AI.Confidence,
			Detail:     hybrid.AI.Reasoning,
		},
		FinalCode:        final,
		Category:         hybrid.Category,
		Confidence:       hybrid.Confidence,
		Agreement:        hybrid.Agreement,
		RequiresReview:   hybrid.RequiresReview,
		Alert:            hybrid.Alert,
		Instructions:     []string{rule.Instruction},
		Causes:           append([]string{}, rule.Causes...),
		Disposition:      final.Disposition(),
		DispositionCode:  final,
		AlternateRouting: final.AlternateRouting(),
		Observation:      observation(final, rule.Causes),
		ResourceCost:     cost,
		EligibilityValid: eligible,
		VitalAlerts:      safeguard.VitalAlerts(input.Biometrics),
	}

	if err := o.append(ctx, record); err != nil {
		return nil, err
	}

	o.logger.WithFields(logrus.Fields(record.LogFields())).WithField("duration", o.now().Sub(startTime)).
		Info("Triage decision recorded")

	return record, nil
}

// classify runs the AI path when configured and reconciles it with the rule
// verdict. Any AI failure degrades to rules only; it is never retried.
func (o *Orchestrator) classify(ctx context.Context, symptom string, answers domain.Answers, rule domain.RuleVerdict) (*domain.HybridVerdict, bool) {
	if !o.config.AIEnabled || o.ai == nil {
		return RulesOnly(rule, "AI classifier not configured"), false
	}

	aiCtx, cancel := context.WithTimeout(ctx, o.config.AITimeout)
	defer cancel()

	ai, err := o.ai.Classify(aiCtx, symptom, answers)
	if err == nil {
		err = validateAiVerdict(ai)
	}
	if err != nil {
		o.logger.WithError(err).WithField("symptom", symptom).Warn("AI classification failed, using rules only")
		return RulesOnly(rule, err.Error()), true
	}

	return o.validator.Reconcile(rule, *ai), true
}

func (o *Orchestrator) block(ctx context.Context, at time.Time) (*domain.DecisionRecord, error) {
	record := &domain.DecisionRecord{
		ID:             o.newID(),
		Timestamp:      at,
		IdentityToken:  blockedIdentity,
		Symptom:        blockedSymptom,
		AskedQuestions: []domain.QuestionAnswer{},
		RuleVerdict: domain.VerdictSummary{
			Code:       domain.CodeBlocked,
			Confidence: 1.0,
			Detail:     "Acceso denegado",
		},
		AiVerdict: domain.VerdictSummary{
			Code:       domain.CodeBlocked,
			Confidence: 1.0,
			Detail:     "Threat detected",
		},
		FinalCode:        domain.CodeBlocked,
		Category:         domain.CategorySecurityThreat,
		Confidence:       1.0,
		Agreement:        true,
		Alert:            domain.AlertNone,
		Instructions:     []string{"Sistema protegido - Acceso bloqueado"},
		Causes:           []string{"Intento de ataque detectado"},
		Disposition:      domain.DispositionBlocked,
		DispositionCode:  domain.CodeBlocked,
		AlternateRouting: false,
		Observation:      "Honeypot activated - " + safeguard.HoneypotTarget,
		ResourceCost:     0,
		EligibilityValid: false,
		ThreatDetected:   true,
		HoneypotActive:   true,
	}

	if err := o.append(ctx, record); err != nil {
		return nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"decision_id": record.ID,
		"target":      safeguard.HoneypotTarget,
	}).Warn("Threat detected, input redirected to honeypot")

	return record, nil
}

func (o *Orchestrator) append(ctx context.Context, record *domain.DecisionRecord) error {
	if err := o.log.Append(ctx, record); err != nil {
		return fmt.Errorf("appending decision record: %w", err)
	}
	if o.publisher != nil {
		o.publisher.Publish(record.Clone())
	}
	return nil
}

// ResourceCost is purely additive: a base cost, a per-question increment and
// flat surcharges for the AI path and the eligibility gate.
func ResourceCost(questions int, aiUsed, gateUsed bool) float64 {
	if questions < 0 {
		questions = 0
	}
	cost := BaseCost + float64(questions)*PerQuestionCost
	if aiUsed {
		cost += AISurcharge
	}
	if gateUsed {
		cost += EligibilitySurcharge
	}
	return cost
}

// validateAiVerdict enforces the AI contract regardless of which client produced it.
func validateAiVerdict(ai *domain.AiVerdict) error {
	if ai == nil {
		return domain.InvalidAiResponseError("empty AI verdict")
	}
	if !ai.Code.IsValid() {
		return domain.InvalidAiResponseError(fmt.Sprintf("unknown urgency code %q", ai.Code))
	}
	if math.IsNaN(ai.Confidence) {
		return domain.InvalidAiResponseError("confidence is not a number")
	}
	ai.Confidence = math.Max(0, math.Min(1, ai.Confidence))
	return nil
}

func observation(code domain.UrgencyCode, causes []string) string {
	if len(causes) > maxObservedCauses {
		causes = causes[:maxObservedCauses]
	}
	return fmt.Sprintf("Clasificación %s. Diagnósticos diferenciales: %s", code, strings.Join(causes, ", "))
}
