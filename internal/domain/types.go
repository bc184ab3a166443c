// Package domain contains the core entities of the emergency triage service:
// urgency codes and their priority order, symptom protocols, verdicts produced by
// the rule and AI classifiers, decision records and demand forecasts.
package domain

import (
	"errors"
	"fmt"
)

// UrgencyCode is the triage severity level assigned to a patient interaction.
type UrgencyCode string

const (
	CodeEmergency     UrgencyCode = "D1"
	CodeUrgent        UrgencyCode = "D2"
	CodeLowComplexity UrgencyCode = "D7"
	CodeConsult       UrgencyCode = "D3"

	// CodeBlocked marks records produced by the threat-block path. It is not
	// part of the priority order.
	CodeBlocked UrgencyCode = "BLOCKED"
)

// Category is the human label of an urgency code.
type Category string

const (
	CategoryEmergency      Category = "EMERGENCIA"
	CategoryUrgent         Category = "URGENCIA"
	CategoryLowComplexity  Category = "URGENCIA BAJA COMPLEJIDAD"
	CategoryConsult        Category = "CONSULTA PRIORITARIA"
	CategorySecurityThreat Category = "SECURITY_THREAT"
)

// Disposition is the downstream routing assigned from the final code.
type Disposition string

const (
	DispositionUrgent   Disposition = "URG"
	DispositionAmbulant Disposition = "LM"
	DispositionConsult  Disposition = "CONS"
	DispositionBlocked  Disposition = "BLOCKED"
)

// AlertLevel grades the disagreement between the rule and AI classifiers.
type AlertLevel string

const (
	AlertNone   AlertLevel = "none"
	AlertLow    AlertLevel = "low"
	AlertMedium AlertLevel = "medium"
	AlertHigh   AlertLevel = "high"
)

// AnswerType is the expected shape of a questionnaire answer.
type AnswerType string

const (
	AnswerBoolean     AnswerType = "boolean"
	AnswerNumeric     AnswerType = "numeric"
	AnswerCategorical AnswerType = "categorical"
)

// codeSpec is one row of the urgency table. Every priority comparison, category
// label, disposition and alternate-routing decision reads from this table.
type codeSpec struct {
	priority    int
	category    Category
	disposition Disposition
	altRouting  bool
}

var urgencyTable = map[UrgencyCode]codeSpec{
	CodeEmergency:     {priority: 4, category: CategoryEmergency, disposition: DispositionUrgent},
	CodeUrgent:        {priority: 3, category: CategoryUrgent, disposition: DispositionUrgent},
	CodeLowComplexity: {priority: 2, category: CategoryLowComplexity, disposition: DispositionAmbulant, altRouting: true},
	CodeConsult:       {priority: 1, category: CategoryConsult, disposition: DispositionConsult, altRouting: true},
}

// FallbackCode is the lowest-priority code, assigned when no rule fires.
const FallbackCode = CodeConsult

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidUrgencyCode = errors.New("invalid urgency code")
)

// ParseUrgencyCode validates a raw code. Lookup is exact; callers normalize case.
func ParseUrgencyCode(raw string) (UrgencyCode, error) {
	code := UrgencyCode(raw)
	if !code.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidUrgencyCode, raw)
	}
	return code, nil
}

// IsValid reports whether the code belongs to the prioritized set.
func (c UrgencyCode) IsValid() bool {
	_, ok := urgencyTable[c]
	return ok
}

func (c UrgencyCode) String() string {
	return string(c)
}

// Priority returns the code's rank; higher is more urgent. Unknown codes rank 0.
func (c UrgencyCode) Priority() int {
	return urgencyTable[c].priority
}

// Category returns the human label of the code.
func (c UrgencyCode) Category() Category {
	if c == CodeBlocked {
		return CategorySecurityThreat
	}
	return urgencyTable[c].category
}

// Disposition maps the code to its routing category. Unknown codes route to consult.
func (c UrgencyCode) Disposition() Disposition {
	if c == CodeBlocked {
		return DispositionBlocked
	}
	if spec, ok := urgencyTable[c]; ok {
		return spec.disposition
	}
	return DispositionConsult
}

// AlternateRouting reports whether the code belongs to the low-urgency subset
// for which alternate (VPP) routing is recommended.
func (c UrgencyCode) AlternateRouting() bool {
	return urgencyTable[c].altRouting
}

// LogFields returns structured logging fields for audit trails.
func (c UrgencyCode) LogFields() map[string]any {
	return map[string]any{
		"urgency_code": string(c),
		"category":     string(c.Category()),
		"priority":     c.Priority(),
		"disposition":  string(c.Disposition()),
	}
}

// HigherPriority returns whichever code is more urgent. Ties return a.
func HigherPriority(a, b UrgencyCode) UrgencyCode {
	if b.Priority() > a.Priority() {
		return b
	}
	return a
}

// PriorityGap is the absolute distance between two codes in the priority order.
func PriorityGap(a, b UrgencyCode) int {
	gap := a.Priority() - b.Priority()
	if gap < 0 {
		return -gap
	}
	return gap
}

// UrgencyCodes lists the prioritized codes from most to least urgent.
func UrgencyCodes() []UrgencyCode {
	return []UrgencyCode{CodeEmergency, CodeUrgent, CodeLowComplexity, CodeConsult}
}

func (a AlertLevel) String() string {
	return string(a)
}
