package domain

import (
	"errors"
	"fmt"
	"time"
)

// TriageError represents a standardized error surfaced to callers of the pipeline.
type TriageError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	cause error
}

// Error implements the error interface
func (e *TriageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the sentinel so callers can match with errors.Is.
func (e *TriageError) Unwrap() error {
	return e.cause
}

// Error codes for different failure scenarios
const (
	ErrCodeUnknownSymptom    = "UNKNOWN_SYMPTOM"
	ErrCodeNoSymptomDetected = "NO_SYMPTOM_DETECTED"
	ErrCodeEligibilityDenied = "ELIGIBILITY_DENIED"
	ErrCodeInvalidAIResponse = "INVALID_AI_RESPONSE"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeInternalServer    = "INTERNAL_SERVER_ERROR"
)

var (
	ErrUnknownSymptom    = errors.New("unknown symptom")
	ErrNoSymptomDetected = errors.New("no symptom detected")
	ErrEligibilityDenied = errors.New("eligibility denied")
	ErrInvalidAiResponse = errors.New("invalid AI response")
)

// NewTriageError creates a new TriageError with timestamp
func NewTriageError(code, message, details string, cause error) *TriageError {
	return &TriageError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// UnknownSymptomError names the symptom that has no protocol.
func UnknownSymptomError(symptom string) *TriageError {
	return NewTriageError(
		ErrCodeUnknownSymptom,
		fmt.Sprintf("symptom %q not found in knowledge base", symptom),
		"list the available symptoms and retry with one of them",
		ErrUnknownSymptom,
	)
}

// NoSymptomDetectedError reports that free-text detection found nothing.
func NoSymptomDetectedError(text string) *TriageError {
	return NewTriageError(
		ErrCodeNoSymptomDetected,
		"could not detect a main symptom in the input text",
		fmt.Sprintf("input had %d characters; supply a known symptom explicitly", len(text)),
		ErrNoSymptomDetected,
	)
}

// EligibilityDeniedError reports a gate rejection.
func EligibilityDeniedError() *TriageError {
	return NewTriageError(
		ErrCodeEligibilityDenied,
		"eligibility validation failed, patient not admitted",
		"",
		ErrEligibilityDenied,
	)
}

// InvalidAiResponseError wraps a malformed AI output. It never leaves the pipeline.
func InvalidAiResponseError(reason string) *TriageError {
	return NewTriageError(ErrCodeInvalidAIResponse, reason, "", ErrInvalidAiResponse)
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
