package forecast

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/domain"
)

const (
	maxSeveritySamples = 20
	severitySeparator  = "; "
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04",
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

var (
	// ErrNoTrainingData is returned when a CSV carries a header but no rows.
	ErrNoTrainingData = errors.New("training data has no rows")
	// ErrInvalidTrainingData marks rows that cannot be parsed.
	ErrInvalidTrainingData = errors.New("invalid training data")
)

type slotAccumulator struct {
	key       string
	rows      int
	sum       float64
	symptoms  []string
	waitSum   float64
	waitCount int
}

// Train rebuilds the baseline from a historical CSV. A header carrying both
// timestamp and symptom columns selects rich mode, where each slot counts its
// rows and asks the severity scorer about up to 20 sample symptoms. Otherwise
// date, hour and patients_seen are required and each slot is the mean count.
// The new baseline is persisted before it replaces the current one.
func (f *Forecaster) Train(ctx context.Context, r io.Reader) (*domain.TrainingResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrainingData, err)
	}
	if len(rows) == 0 {
		return nil, domain.NewValidationError("csv", "missing header row", "")
	}

	columns := headerIndex(rows[0])
	data := rows[1:]
	if len(data) == 0 {
		return nil, ErrNoTrainingData
	}

	mode := domain.TrainingModeSimple
	var baseline domain.Baseline
	if columns.has("timestamp") && columns.has("symptom") {
		mode = domain.TrainingModeRich
		baseline, err = f.trainRich(ctx, columns, data)
	} else {
		baseline, err = trainSimple(columns, data)
	}
	if err != nil {
		return nil, err
	}

	if f.store != nil {
		if err := f.store.SaveBaseline(ctx, baseline); err != nil {
			return nil, fmt.Errorf("failed to persist baseline: %w", err)
		}
	}

	f.mu.Lock()
	f.baseline = baseline
	f.mu.Unlock()

	f.logger.WithFields(logrus.Fields{
		"mode":             mode,
		"rows":             len(data),
		"baseline_entries": len(baseline),
	}).Info("Forecast baseline trained")

	return &domain.TrainingResult{
		Status:          "success",
		Mode:            mode,
		BaselineEntries: len(baseline),
	}, nil
}

func trainSimple(columns columnIndex, data [][]string) (domain.Baseline, error) {
	for _, required := range []string{"date", "hour", "patients_seen"} {
		if !columns.has(required) {
			return nil, domain.NewValidationError("csv", "simple mode requires date, hour and patients_seen columns", required)
		}
	}

	slots := make(map[string]*slotAccumulator)
	for i, row := range data {
		line := i + 2

		date, err := parseTime(columns.get(row, "date"), dateLayouts)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid date: %v", ErrInvalidTrainingData, line, err)
		}
		hour, err := strconv.Atoi(columns.get(row, "hour"))
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("%w: line %d: invalid hour %q", ErrInvalidTrainingData, line, columns.get(row, "hour"))
		}
		seen, err := parseCount(columns.get(row, "patients_seen"))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid patients_seen: %v", ErrInvalidTrainingData, line, err)
		}

		key := domain.SlotKey(domain.MondayFirstWeekday(date), hour)
		acc, ok := slots[key]
		if !ok {
			acc = &slotAccumulator{key: key}
			slots[key] = acc
		}
		acc.rows++
		acc.sum += seen
	}

	baseline := make(domain.Baseline, len(slots))
	for key, acc := range slots {
		baseline[key] = domain.BaselineSlot{
			Count:    acc.sum / float64(acc.rows),
			Severity: DefaultSeverity,
		}
	}
	return baseline, nil
}

// parseCount accepts finite, non-negative numbers only.
func parseCount(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%q is not a finite non-negative number", raw)
	}
	return v, nil
}

func (f *Forecaster) trainRich(ctx context.Context, columns columnIndex, data [][]string) (domain.Baseline, error) {
	hasWait := columns.has("wait_time_min")

	var order []*slotAccumulator
	slots := make(map[string]*slotAccumulator)
	for i, row := range data {
		line := i + 2

		ts, err := parseTime(columns.get(row, "timestamp"), timestampLayouts)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid timestamp: %v", ErrInvalidTrainingData, line, err)
		}

		key := domain.SlotKeyFor(ts)
		acc, ok := slots[key]
		if !ok {
			acc = &slotAccumulator{key: key}
			slots[key] = acc
			order = append(order, acc)
		}
		acc.rows++
		if len(acc.symptoms) < maxSeveritySamples {
			acc.symptoms = append(acc.symptoms, columns.get(row, "symptom"))
		}
		if hasWait {
			if wait, err := parseCount(columns.get(row, "wait_time_min")); err == nil {
				acc.waitSum += wait
				acc.waitCount++
			}
		}
	}

	baseline := make(domain.Baseline, len(order))
	for _, acc := range order {
		slot := domain.BaselineSlot{
			Count:    float64(acc.rows),
			Severity: f.scoreSeverity(ctx, strings.Join(acc.symptoms, severitySeparator)),
		}
		if acc.waitCount > 0 {
			slot.AvgWaitMinutes = acc.waitSum / float64(acc.waitCount)
		}
		baseline[acc.key] = slot
	}
	return baseline, nil
}

// scoreSeverity asks the scorer for a clinical severity weight, memoizing
// results per summary. Failures and non-positive scores fall back to 1.0.
func (f *Forecaster) scoreSeverity(ctx context.Context, summary string) float64 {
	if f.scorer == nil {
		return DefaultSeverity
	}
	if cached, ok := f.severity.Get(summary); ok {
		return cached
	}

	score, err := f.scorer.Score(ctx, summary)
	if err != nil {
		f.logger.WithError(err).Warn("Severity scoring failed, using neutral severity")
		return DefaultSeverity
	}
	if score <= 0 {
		return DefaultSeverity
	}

	f.severity.Add(summary, score)
	return score
}

type columnIndex map[string]int

func headerIndex(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

func (c columnIndex) has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c columnIndex) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseTime(value string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}
