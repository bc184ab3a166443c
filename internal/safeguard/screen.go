// Package safeguard holds the pluggable protection stages of the triage
// pipeline: threat screening, pseudonymous identity hashing, the eligibility
// gate and vital-sign checks.
package safeguard

import (
	"strings"

	"github.com/orion-triage-server/internal/domain"
)

// HoneypotTarget names the synthetic environment blocked input is redirected to.
const HoneypotTarget = "SYNTHETIC_ENV_01"

// DefaultThreatPatterns are matched as plain lower-case substrings.
var DefaultThreatPatterns = []string{
	"sql", "injection", "script", "alert(", "drop table",
	"union select", "exec(", "eval(", "<script", "javascript:",
}

// PatternScreen flags input containing any known attack substring. Matching is
// loose: "transcripto" contains "script" and is blocked.
type PatternScreen struct {
	patterns []string
}

// NewPatternScreen creates a screen over the given patterns, or the defaults when none are given.
func NewPatternScreen(patterns ...string) *PatternScreen {
	if len(patterns) == 0 {
		patterns = DefaultThreatPatterns
	}
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.ToLower(p); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &PatternScreen{patterns: lowered}
}

// Detect checks the narrative text and every string answer value.
func (s *PatternScreen) Detect(text string, answers domain.Answers) bool {
	if s.matches(text) {
		return true
	}
	for _, ans := range answers {
		if v, ok := ans.Value.(string); ok && s.matches(v) {
			return true
		}
	}
	return false
}

func (s *PatternScreen) matches(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range s.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
