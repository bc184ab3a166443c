package domain

import (
	"fmt"
	"time"
)

// EnvironmentalFactors are the external conditions applied to a demand forecast.
// Weather is one of sunny, rainy or storm; traffic is low, medium or high; event is
// none, concert, protest or holiday. Unknown values apply a neutral multiplier.
type EnvironmentalFactors struct {
	Weather string `json:"weather"`
	Traffic string `json:"traffic"`
	Event   string `json:"event"`
}

// NeutralFactors is the factor set used for drift comparisons.
var NeutralFactors = EnvironmentalFactors{Weather: "sunny", Traffic: "low", Event: "none"}

// Forecast is a staffing and bed-demand prediction for one hour slot.
type Forecast struct {
	TargetTime               time.Time          `json:"target_time"`
	PredictedPatientsPerHour float64            `json:"predicted_patients_per_hour"`
	RequiredDoctors          int                `json:"required_doctors"`
	RequiredNurses           int                `json:"required_nurses"`
	RequiredBeds             int                `json:"required_bed_units"`
	Confidence               float64            `json:"confidence_score"`
	BaselineFound            bool               `json:"baseline_found"`
	FactorsApplied           map[string]float64 `json:"factors_applied"`
}

// BaselineSlot is the learned demand for one (weekday, hour) slot.
type BaselineSlot struct {
	Count          float64 `json:"count"`
	Severity       float64 `json:"severity"`
	AvgWaitMinutes float64 `json:"avg_wait,omitempty"`
}

// Baseline maps slot keys ("weekday-hour", Monday = 0) to learned demand.
type Baseline map[string]BaselineSlot

// SlotKey formats the baseline key of a weekday (Monday = 0) and hour.
func SlotKey(weekday, hour int) string {
	return fmt.Sprintf("%d-%d", weekday, hour)
}

// SlotKeyFor derives the baseline key of a moment.
func SlotKeyFor(t time.Time) string {
	return SlotKey(MondayFirstWeekday(t), t.Hour())
}

// MondayFirstWeekday returns the weekday with Monday = 0 and Sunday = 6.
func MondayFirstWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Clone returns an independent copy of the baseline.
func (b Baseline) Clone() Baseline {
	out := make(Baseline, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// UsageObservation is an actual observed patient count fed back to the forecaster.
type UsageObservation struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// Drift report statuses.
const (
	DriftStatusNoData = "no_data"
	DriftStatusActive = "active"
)

// DriftReport compares the latest observation with a fresh neutral prediction.
type DriftReport struct {
	Status          string     `json:"status"`
	LatestTimestamp *time.Time `json:"latest_timestamp,omitempty"`
	Actual          *float64   `json:"actual,omitempty"`
	Predicted       *float64   `json:"predicted,omitempty"`
	DriftPercentage float64    `json:"drift_percentage"`
	Alert           bool       `json:"alert"`
}

// Training modes.
const (
	TrainingModeSimple = "simple"
	TrainingModeRich   = "rich_ai"
)

// TrainingResult summarizes a baseline rebuild.
type TrainingResult struct {
	Status          string `json:"status"`
	Mode            string `json:"mode"`
	BaselineEntries int    `json:"baseline_entries"`
}

// PerformanceSeries pairs recent observations with their neutral predictions.
type PerformanceSeries struct {
	Labels    []string  `json:"labels"`
	Predicted []float64 `json:"predicted"`
	Actual    []float64 `json:"actual"`
}

// PredictionPerformance is the drift report plus a short chart series.
type PredictionPerformance struct {
	DriftReport DriftReport       `json:"drift_report"`
	GraphData   PerformanceSeries `json:"graph_data"`
}
