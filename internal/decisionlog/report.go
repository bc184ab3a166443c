package decisionlog

import (
	"time"

	"github.com/orion-triage-server/internal/domain"
)

// MonthlyReport summarizes operations and resource cost over a set of decisions.
type MonthlyReport struct {
	Period                 string         `json:"period,omitempty"`
	TotalDecisions         int            `json:"total_decisions"`
	TotalResourceCost      float64        `json:"total_resource_cost"`
	DecisionsByDisposition map[string]int `json:"decisions_by_disposition"`
	ThreatsDetected        int            `json:"threats_detected"`
	EligibilityValidations int            `json:"eligibility_validations"`
	RequiringReview        int            `json:"requiring_review"`
}

// BuildMonthlyReport aggregates records. Pass the whole snapshot for an
// all-time report or a FilterMonth result for a calendar month.
func BuildMonthlyReport(records []*domain.DecisionRecord) *MonthlyReport {
	report := &MonthlyReport{
		DecisionsByDisposition: make(map[string]int),
	}

	for _, r := range records {
		report.TotalDecisions++
		report.TotalResourceCost += r.ResourceCost
		report.DecisionsByDisposition[string(r.DispositionCode)]++
		if r.ThreatDetected {
			report.ThreatsDetected++
		}
		if r.EligibilityValid {
			report.EligibilityValidations++
		}
		if r.RequiresReview {
			report.RequiringReview++
		}
	}

	return report
}

// FilterMonth keeps the records whose timestamp falls in the UTC calendar month of month.
func FilterMonth(records []*domain.DecisionRecord, month time.Time) []*domain.DecisionRecord {
	month = month.UTC()
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var out []*domain.DecisionRecord
	for _, r := range records {
		ts := r.Timestamp.UTC()
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, r)
		}
	}
	return out
}

// ParsePeriod parses a "YYYY-MM" period.
func ParsePeriod(period string) (time.Time, error) {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, domain.NewValidationError("month", "month must use the YYYY-MM format", period)
	}
	return t, nil
}
