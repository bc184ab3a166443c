package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/orion-triage-server/internal/domain"
)

const (
	agreementBonus     = 0.1
	disagreementFactor = 0.7
	weightTolerance    = 1e-9
)

// CrossValidator reconciles a rule verdict with an independent AI verdict.
// It is pure: no side effects and no external calls.
type CrossValidator struct {
	ruleWeight float64
	aiWeight   float64
}

// NewCrossValidator creates a validator with the confidence blend weights used
// for one-level disagreements. The weights must sum to 1.0.
func NewCrossValidator(ruleWeight, aiWeight float64) (*CrossValidator, error) {
	if ruleWeight < 0 || aiWeight < 0 || math.Abs(ruleWeight+aiWeight-1.0) > weightTolerance {
		return nil, domain.NewValidationError("weights", "rule and AI weights must be non-negative and sum to 1.0",
			fmt.Sprintf("%.4f/%.4f", ruleWeight, aiWeight))
	}
	return &CrossValidator{ruleWeight: ruleWeight, aiWeight: aiWeight}, nil
}

// DefaultCrossValidator uses the 0.4 rule / 0.6 AI blend.
func DefaultCrossValidator() *CrossValidator {
	return &CrossValidator{ruleWeight: 0.4, aiWeight: 0.6}
}

// Reconcile merges both verdicts. Disagreement always escalates to the more
// urgent code, never the less urgent one.
func (cv *CrossValidator) Reconcile(rule domain.RuleVerdict, ai domain.AiVerdict) *domain.HybridVerdict {
	agree := rule.Code == ai.Code
	gap := domain.PriorityGap(rule.Code, ai.Code)
	final := domain.HigherPriority(rule.Code, ai.Code)

	hv := &domain.HybridVerdict{
		Code:      final,
		Category:  final.Category(),
		Rule:      rule,
		AI:        ai,
		Agreement: agree,
	}

	switch {
	case gap == 0:
		hv.Confidence = math.Min(1.0, math.Max(rule.Confidence, ai.Confidence)+agreementBonus)
		hv.Alert = domain.AlertNone
		hv.Explanation = fmt.Sprintf("Full agreement: both classifiers assign %s.", final)
	case gap == 1:
		hv.Confidence = cv.ruleWeight*rule.Confidence + cv.aiWeight*ai.Confidence
		hv.Alert = domain.AlertLow
		hv.Explanation = fmt.Sprintf("Minor disagreement: rules=%s, AI=%s. Escalating to %s.", rule.Code, ai.Code, final)
	default:
		hv.Confidence = math.Min(rule.Confidence, ai.Confidence) * disagreementFactor
		hv.Alert = domain.AlertMedium
		if gap >= 3 {
			hv.Alert = domain.AlertHigh
		}
		hv.RequiresReview = true
		hv.Explanation = fmt.Sprintf("Major disagreement: rules=%s, AI=%s. Classified as %s. Medical review required.",
			rule.Code, ai.Code, final)
	}

	hv.CombinedReasoning = combinedReasoning(rule, ai, agree)
	return hv
}

// RulesOnly builds the degraded verdict used when the AI classifier is not
// configured or failed. The AI placeholder carries a zero confidence and the
// reason so that degraded records stay distinguishable in the audit log.
func RulesOnly(rule domain.RuleVerdict, reason string) *domain.HybridVerdict {
	placeholder := domain.AiVerdict{
		Code:            rule.Code,
		Confidence:      0.0,
		Reasoning:       "unavailable: " + reason,
		Differentials:   []string{},
		Recommendations: []string{},
	}

	return &domain.HybridVerdict{
		Code:              rule.Code,
		Category:          rule.Code.Category(),
		Confidence:        rule.Confidence,
		Rule:              rule,
		AI:                placeholder,
		Agreement:         true,
		RequiresReview:    false,
		Alert:             domain.AlertNone,
		Explanation:       "Classification based on clinical rules only (AI unavailable).",
		CombinedReasoning: "**Rules**: " + rule.Instruction,
		Degraded:          true,
	}
}

func combinedReasoning(rule domain.RuleVerdict, ai domain.AiVerdict, agree bool) string {
	var b strings.Builder

	b.WriteString("## Dual analysis\n\n")

	b.WriteString("### Clinical rules\n")
	fmt.Fprintf(&b, "**Code**: %s\n", rule.Code)
	fmt.Fprintf(&b, "**Confidence**: %.0f%%\n", rule.Confidence*100)
	fmt.Fprintf(&b, "**Instruction**: %s\n", rule.Instruction)
	fmt.Fprintf(&b, "**Possible causes**: %s\n\n", strings.Join(rule.Causes, ", "))

	b.WriteString("### Medical AI\n")
	fmt.Fprintf(&b, "**Code**: %s\n", ai.Code)
	fmt.Fprintf(&b, "**Confidence**: %.0f%%\n", ai.Confidence*100)
	fmt.Fprintf(&b, "**Reasoning**: %s\n", ai.Reasoning)
	fmt.Fprintf(&b, "**Differential diagnoses**: %s\n", strings.Join(ai.Differentials, ", "))
	if len(ai.Recommendations) > 0 {
		fmt.Fprintf(&b, "**Recommendations**: %s\n", strings.Join(ai.Recommendations, ", "))
	}
	b.WriteString("\n")

	b.WriteString("### Conclusion\n")
	if agree {
		b.WriteString("Both classifiers agree. High confidence in the classification.\n")
	} else {
		b.WriteString("Classifiers disagree. Additional medical evaluation is recommended to confirm the classification.\n")
	}

	return b.String()
}
