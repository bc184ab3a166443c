// Package forecast predicts hourly patient demand and the staffing it needs
// from a learned (weekday, hour) baseline and environmental multipliers.
package forecast

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/domain"
)

// Baseline defaults and resource heuristics.
const (
	DefaultSlotCount       = 10.0
	DefaultSeverity        = 1.0
	BaselineConfidence     = 0.85
	NoBaselineConfidence   = 0.4
	DefaultUsageCap        = 100
	DefaultSeverityMemo    = 256
	DriftAlertThreshold    = 20.0
	doctorCapacity         = 4.0
	nursesPerDoctor        = 1.5
	minNurses              = 2
	avgStayHours           = 3.0
	bedBuffer              = 1.1
	performanceWindow      = 4
	factorClinicalSeverity = "clinical_severity"
)

var (
	weatherMultipliers = map[string]float64{"sunny": 1.0, "rainy": 1.10, "storm": 1.25}
	trafficMultipliers = map[string]float64{"low": 1.0, "medium": 1.05, "high": 1.15}
	eventMultipliers   = map[string]float64{"none": 1.0, "concert": 1.20, "protest": 1.35, "holiday": 1.15}

	performanceLabels = []string{"-3h", "-2h", "-1h", "Now"}
)

// Deps are the optional collaborators of a Forecaster.
type Deps struct {
	Scorer  domain.SeverityScorer
	Store   domain.BaselineStore
	Archive domain.UsageArchive
}

// UsageHistory is implemented by archives that can replay their most recent
// observations, oldest first.
type UsageHistory interface {
	RecentUsage(ctx context.Context, limit int) ([]domain.UsageObservation, error)
}

// Forecaster owns the demand baseline and the ring of actual usage observations.
type Forecaster struct {
	mu       sync.RWMutex
	baseline domain.Baseline
	usage    []domain.UsageObservation
	usageCap int

	scorer   domain.SeverityScorer
	severity *lru.Cache[string, float64]
	store    domain.BaselineStore
	archive  domain.UsageArchive
	logger   *logrus.Logger
}

// NewForecaster creates a forecaster with an empty baseline.
func NewForecaster(deps Deps, cfg domain.ForecastConfig, logger *logrus.Logger) (*Forecaster, error) {
	usageCap := cfg.UsageCap
	if usageCap <= 0 {
		usageCap = DefaultUsageCap
	}
	memoSize := cfg.SeverityCacheSize
	if memoSize <= 0 {
		memoSize = DefaultSeverityMemo
	}

	memo, err := lru.New[string, float64](memoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create severity cache: %w", err)
	}

	return &Forecaster{
		baseline: domain.Baseline{},
		usageCap: usageCap,
		scorer:   deps.Scorer,
		severity: memo,
		store:    deps.Store,
		archive:  deps.Archive,
		logger:   logger,
	}, nil
}

// Load replaces the baseline with the persisted one, if a store is configured.
func (f *Forecaster) Load(ctx context.Context) error {
	if f.store == nil {
		return nil
	}

	baseline, err := f.store.LoadBaseline(ctx)
	if err != nil {
		return fmt.Errorf("failed to load baseline: %w", err)
	}
	if baseline == nil {
		baseline = domain.Baseline{}
	}

	var usage []domain.UsageObservation
	if history, ok := f.archive.(UsageHistory); ok {
		usage, err = history.RecentUsage(ctx, f.usageCap)
		if err != nil {
			return fmt.Errorf("failed to load usage history: %w", err)
		}
	}

	f.mu.Lock()
	f.baseline = baseline
	if usage != nil {
		f.usage = usage
	}
	f.mu.Unlock()

	f.logger.WithFields(logrus.Fields{
		"baseline_entries": len(baseline),
		"observations":     len(usage),
	}).Info("Forecast baseline loaded")
	return nil
}

// Baseline returns a copy of the current baseline.
func (f *Forecaster) Baseline() domain.Baseline {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.baseline.Clone()
}

// Observations returns a copy of the usage ring, oldest first.
func (f *Forecaster) Observations() []domain.UsageObservation {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]domain.UsageObservation(nil), f.usage...)
}

// Predict forecasts demand and staffing for the slot of target. A slot without
// baseline falls back to a default demand at lower confidence.
func (f *Forecaster) Predict(target time.Time, factors domain.EnvironmentalFactors) domain.Forecast {
	f.mu.RLock()
	slot, found := f.baseline[domain.SlotKeyFor(target)]
	f.mu.RUnlock()

	return predictFromSlot(target, factors, slot, found)
}

func predictFromSlot(target time.Time, factors domain.EnvironmentalFactors, slot domain.BaselineSlot, found bool) domain.Forecast {
	count, severity, confidence := DefaultSlotCount, DefaultSeverity, NoBaselineConfidence
	if found {
		count, severity, confidence = slot.Count, slot.Severity, BaselineConfidence
		if severity <= 0 {
			severity = DefaultSeverity
		}
	}

	w := multiplier(weatherMultipliers, factors.Weather)
	t := multiplier(trafficMultipliers, factors.Traffic)
	e := multiplier(eventMultipliers, factors.Event)

	predicted := count * w * t * e

	doctors := int(math.Ceil(predicted * severity / doctorCapacity))
	nurses := int(math.Ceil(float64(doctors) * nursesPerDoctor))
	if nurses < minNurses {
		nurses = minNurses
	}
	beds := int(math.Ceil(predicted * avgStayHours * bedBuffer))

	return domain.Forecast{
		TargetTime:               target,
		PredictedPatientsPerHour: round(predicted, 1),
		RequiredDoctors:          doctors,
		RequiredNurses:           nurses,
		RequiredBeds:             beds,
		Confidence:               confidence,
		BaselineFound:            found,
		FactorsApplied: map[string]float64{
			"weather":              w,
			"traffic":              t,
			"event":                e,
			factorClinicalSeverity: severity,
		},
	}
}

// RecordActual appends an observation to the usage ring, dropping the oldest
// beyond capacity, and archives it when an archive is configured.
func (f *Forecaster) RecordActual(ctx context.Context, at time.Time, count int) domain.UsageObservation {
	obs := domain.UsageObservation{Timestamp: at, Count: count}

	f.mu.Lock()
	f.usage = append(f.usage, obs)
	if over := len(f.usage) - f.usageCap; over > 0 {
		f.usage = append([]domain.UsageObservation(nil), f.usage[over:]...)
	}
	f.mu.Unlock()

	if f.archive != nil {
		if err := f.archive.ArchiveUsage(ctx, obs); err != nil {
			f.logger.WithError(err).Warn("Failed to archive usage observation")
		}
	}

	f.logger.WithFields(logrus.Fields{
		"timestamp": at,
		"count":     count,
	}).Debug("Actual usage recorded")

	return obs
}

// DriftReport compares the latest observation with a neutral-factor prediction
// for the same moment.
func (f *Forecaster) DriftReport() domain.DriftReport {
	f.mu.RLock()
	if len(f.usage) == 0 {
		f.mu.RUnlock()
		return domain.DriftReport{Status: domain.DriftStatusNoData, DriftPercentage: 0}
	}
	latest := f.usage[len(f.usage)-1]
	f.mu.RUnlock()

	return f.driftFor(latest)
}

func (f *Forecaster) driftFor(obs domain.UsageObservation) domain.DriftReport {
	predicted := f.Predict(obs.Timestamp, domain.NeutralFactors).PredictedPatientsPerHour
	actual := float64(obs.Count)

	drift := 0.0
	if predicted != 0 {
		drift = (actual - predicted) / predicted * 100.0
	}

	ts := obs.Timestamp
	return domain.DriftReport{
		Status:          domain.DriftStatusActive,
		LatestTimestamp: &ts,
		Actual:          &actual,
		Predicted:       &predicted,
		DriftPercentage: round(drift, 2),
		Alert:           math.Abs(drift) > DriftAlertThreshold,
	}
}

// Performance returns the drift report and a chart series of the most recent
// observations against their neutral predictions.
func (f *Forecaster) Performance() domain.PredictionPerformance {
	f.mu.RLock()
	start := len(f.usage) - performanceWindow
	if start < 0 {
		start = 0
	}
	recent := append([]domain.UsageObservation(nil), f.usage[start:]...)
	f.mu.RUnlock()

	series := domain.PerformanceSeries{
		Labels:    append([]string{}, performanceLabels[performanceWindow-len(recent):]...),
		Predicted: make([]float64, 0, len(recent)),
		Actual:    make([]float64, 0, len(recent)),
	}
	for _, obs := range recent {
		series.Predicted = append(series.Predicted, f.Predict(obs.Timestamp, domain.NeutralFactors).PredictedPatientsPerHour)
		series.Actual = append(series.Actual, float64(obs.Count))
	}

	return domain.PredictionPerformance{
		DriftReport: f.DriftReport(),
		GraphData:   series,
	}
}

func multiplier(table map[string]float64, value string) float64 {
	if m, ok := table[value]; ok {
		return m
	}
	return 1.0
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
