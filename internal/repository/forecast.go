package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/domain"
)

// ForecastRepository persists the forecaster baseline and archives actual
// usage observations in PostgreSQL.
type ForecastRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewForecastRepository creates a new forecast repository
func NewForecastRepository(db *pgxpool.Pool, logger *logrus.Logger) *ForecastRepository {
	return &ForecastRepository{
		db:  db,
		log: logger,
	}
}

// SaveBaseline replaces the stored baseline. There is only ever one row.
func (r *ForecastRepository) SaveBaseline(ctx context.Context, baseline domain.Baseline) error {
	if baseline == nil {
		baseline = domain.Baseline{}
	}
	slots, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("encoding baseline: %w", err)
	}

	query := `
		INSERT INTO forecast_baseline (id, slots, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET
			slots = EXCLUDED.slots,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.Exec(ctx, query, slots); err != nil {
		r.log.WithError(err).Error("Failed to save forecast baseline")
		return fmt.Errorf("saving baseline: %w", err)
	}

	r.log.WithField("slots", len(baseline)).Info("Forecast baseline saved")
	return nil
}

// LoadBaseline returns the stored baseline, or an empty one when none was saved.
func (r *ForecastRepository) LoadBaseline(ctx context.Context) (domain.Baseline, error) {
	var slots []byte
	err := r.db.QueryRow(ctx, `SELECT slots FROM forecast_baseline WHERE id = 1`).Scan(&slots)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Baseline{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading baseline: %w", err)
	}

	baseline := domain.Baseline{}
	if err := json.Unmarshal(slots, &baseline); err != nil {
		return nil, fmt.Errorf("decoding baseline: %w", err)
	}
	return baseline, nil
}

// ArchiveUsage stores one actual usage observation.
func (r *ForecastRepository) ArchiveUsage(ctx context.Context, obs domain.UsageObservation) error {
	query := `
		INSERT INTO usage_observations (observed_at, slot, actual)
		VALUES ($1, $2, $3)`

	if _, err := r.db.Exec(ctx, query, obs.Timestamp.UTC(), domain.SlotKeyFor(obs.Timestamp), obs.Count); err != nil {
		return fmt.Errorf("archiving usage observation: %w", err)
	}
	return nil
}

// RecentUsage returns up to limit observations in arrival order, oldest first.
func (r *ForecastRepository) RecentUsage(ctx context.Context, limit int) ([]domain.UsageObservation, error) {
	query := `
		SELECT observed_at, actual FROM (
			SELECT id, observed_at, actual
			FROM usage_observations
			ORDER BY id DESC
			LIMIT $1
		) recent
		ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying usage observations: %w", err)
	}
	defer rows.Close()

	observations := []domain.UsageObservation{}
	for rows.Next() {
		var obs domain.UsageObservation
		if err := rows.Scan(&obs.Timestamp, &obs.Count); err != nil {
			return nil, fmt.Errorf("scanning usage observation: %w", err)
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage observations: %w", err)
	}
	return observations, nil
}

