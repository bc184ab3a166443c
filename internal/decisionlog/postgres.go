package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq"

	"github.com/orion-triage-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL decision log.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL decision log from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Append inserts record at the end of the log. The BIGSERIAL seq column
// orders concurrent appends.
func (s *PostgresStore) Append(ctx context.Context, record *domain.DecisionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	query := `
		INSERT INTO decision_records (
			id, recorded_at, symptom, final_code, disposition_code,
			resource_cost, requires_review, threat_detected, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.Timestamp.UTC(),
		record.Symptom,
		string(record.FinalCode),
		string(record.DispositionCode),
		record.ResourceCost,
		record.RequiresReview,
		record.ThreatDetected,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) Snapshot(ctx context.Context) ([]*domain.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM decision_records ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	return collectRecords(rows)
}

func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.DecisionRecord, error) {
	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM decision_records ORDER BY seq DESC LIMIT $1 OFFSET $2", limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	return collectRecords(rows)
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decision_records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	return writeExport(writer, all)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
