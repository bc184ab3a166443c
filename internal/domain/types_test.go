package domain

import (
	"errors"
	"testing"
	"time"
)

func TestUrgencyCodePriorityOrder(t *testing.T) {
	tests := []struct {
		code     UrgencyCode
		priority int
		category Category
	}{
		{CodeEmergency, 4, CategoryEmergency},
		{CodeUrgent, 3, CategoryUrgent},
		{CodeLowComplexity, 2, CategoryLowComplexity},
		{CodeConsult, 1, CategoryConsult},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.Priority(); got != tt.priority {
				t.Errorf("Expected priority %d, got %d", tt.priority, got)
			}
			if got := tt.code.Category(); got != tt.category {
				t.Errorf("Expected category %s, got %s", tt.category, got)
			}
			if !tt.code.IsValid() {
				t.Errorf("Expected %s to be valid", tt.code)
			}
		})
	}

	codes := UrgencyCodes()
	for i := 1; i < len(codes); i++ {
		if codes[i-1].Priority() <= codes[i].Priority() {
			t.Errorf("UrgencyCodes not ordered by priority at %d", i)
		}
	}
}

func TestUrgencyCodeDisposition(t *testing.T) {
	tests := []struct {
		code        UrgencyCode
		disposition Disposition
		altRouting  bool
	}{
		{CodeEmergency, DispositionUrgent, false},
		{CodeUrgent, DispositionUrgent, false},
		{CodeLowComplexity, DispositionAmbulant, true},
		{CodeConsult, DispositionConsult, true},
		{CodeBlocked, DispositionBlocked, false},
		{UrgencyCode("D9"), DispositionConsult, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.Disposition(); got != tt.disposition {
				t.Errorf("Expected disposition %s, got %s", tt.disposition, got)
			}
			if got := tt.code.AlternateRouting(); got != tt.altRouting {
				t.Errorf("Expected alternate routing %v, got %v", tt.altRouting, got)
			}
		})
	}
}

func TestBlockedCodeOutsidePriorityOrder(t *testing.T) {
	if CodeBlocked.IsValid() {
		t.Error("BLOCKED must not be a prioritized code")
	}
	if CodeBlocked.Priority() != 0 {
		t.Errorf("Expected BLOCKED priority 0, got %d", CodeBlocked.Priority())
	}
	if CodeBlocked.Category() != CategorySecurityThreat {
		t.Errorf("Expected SECURITY_THREAT category, got %s", CodeBlocked.Category())
	}
}

func TestHigherPriorityAndGap(t *testing.T) {
	tests := []struct {
		name   string
		a, b   UrgencyCode
		higher UrgencyCode
		gap    int
	}{
		{"same code", CodeUrgent, CodeUrgent, CodeUrgent, 0},
		{"adjacent", CodeUrgent, CodeLowComplexity, CodeUrgent, 1},
		{"adjacent reversed", CodeLowComplexity, CodeUrgent, CodeUrgent, 1},
		{"two apart", CodeConsult, CodeUrgent, CodeUrgent, 2},
		{"extremes", CodeConsult, CodeEmergency, CodeEmergency, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HigherPriority(tt.a, tt.b); got != tt.higher {
				t.Errorf("Expected %s, got %s", tt.higher, got)
			}
			if got := PriorityGap(tt.a, tt.b); got != tt.gap {
				t.Errorf("Expected gap %d, got %d", tt.gap, got)
			}
		})
	}
}

func TestParseUrgencyCode(t *testing.T) {
	code, err := ParseUrgencyCode("D7")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if code != CodeLowComplexity {
		t.Errorf("Expected D7, got %s", code)
	}

	_, err = ParseUrgencyCode("BLOCKED")
	if !errors.Is(err, ErrInvalidUrgencyCode) {
		t.Errorf("Expected ErrInvalidUrgencyCode, got %v", err)
	}
}

func TestMondayFirstWeekday(t *testing.T) {
	// 2024-01-01 was a Monday.
	monday := mustDate(t, "2024-01-01T10:00:00Z")
	sunday := mustDate(t, "2024-01-07T23:00:00Z")

	if got := MondayFirstWeekday(monday); got != 0 {
		t.Errorf("Expected Monday = 0, got %d", got)
	}
	if got := MondayFirstWeekday(sunday); got != 6 {
		t.Errorf("Expected Sunday = 6, got %d", got)
	}
	if got := SlotKeyFor(monday); got != "0-10" {
		t.Errorf("Expected slot 0-10, got %s", got)
	}
}

func TestDecisionRecordCloneIsIndependent(t *testing.T) {
	rec := &DecisionRecord{
		Causes:      []string{"IAM"},
		VitalAlerts: map[string]string{"heart_rate": "CRITICAL"},
	}
	c := rec.Clone()
	c.Causes[0] = "changed"
	c.VitalAlerts["heart_rate"] = "OK"

	if rec.Causes[0] != "IAM" {
		t.Error("Clone shares causes slice with original")
	}
	if rec.VitalAlerts["heart_rate"] != "CRITICAL" {
		t.Error("Clone shares vital alerts map with original")
	}
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("Failed to parse %s: %v", value, err)
	}
	return ts
}
