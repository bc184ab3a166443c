package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTriageErrorSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      *TriageError
		code     string
		sentinel error
	}{
		{"Unknown symptom", UnknownSymptomError("fiebre alta"), ErrCodeUnknownSymptom, ErrUnknownSymptom},
		{"No symptom", NoSymptomDetectedError("hola"), ErrCodeNoSymptomDetected, ErrNoSymptomDetected},
		{"Eligibility", EligibilityDeniedError(), ErrCodeEligibilityDenied, ErrEligibilityDenied},
		{"Invalid AI", InvalidAiResponseError("bad json"), ErrCodeInvalidAIResponse, ErrInvalidAiResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, tt.err.Code)
			}
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("Expected error to match sentinel %v", tt.sentinel)
			}
			if !strings.HasPrefix(tt.err.Error(), tt.code+": ") {
				t.Errorf("Expected error string to start with code, got %q", tt.err.Error())
			}
			if time.Since(tt.err.Timestamp) > time.Minute {
				t.Error("Expected a fresh timestamp")
			}
		})
	}
}

func TestUnknownSymptomErrorNamesSymptom(t *testing.T) {
	err := UnknownSymptomError("dolor de oido")
	if !strings.Contains(err.Message, "dolor de oido") {
		t.Errorf("Expected message to name the symptom, got %q", err.Message)
	}
}

func TestTriageErrorJSONOmitsCause(t *testing.T) {
	data, err := json.Marshal(EligibilityDeniedError())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.Contains(string(data), "cause") {
		t.Errorf("Cause leaked into JSON: %s", data)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("rule_weight", "weights must sum to 1.0", 0.7)

	expected := "validation error for field 'rule_weight': weights must sum to 1.0"
	if err.Error() != expected {
		t.Errorf("Expected error message %s, got %s", expected, err.Error())
	}
}
