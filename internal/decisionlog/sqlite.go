package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/orion-triage-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite decision log.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the decision table. seq preserves append order.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS decision_records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		recorded_at DATETIME NOT NULL,
		symptom TEXT NOT NULL,
		final_code TEXT NOT NULL,
		disposition_code TEXT NOT NULL,
		resource_cost REAL NOT NULL DEFAULT 0,
		requires_review INTEGER NOT NULL DEFAULT 0,
		threat_detected INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decision_recorded_at ON decision_records(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_decision_final_code ON decision_records(final_code);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*domain.DecisionRecord, error) {
	var payload []byte
	if err := s.Scan(&payload); err != nil {
		return nil, err
	}
	record := &domain.DecisionRecord{}
	if err := json.Unmarshal(payload, record); err != nil {
		return nil, fmt.Errorf("failed to decode record payload: %w", err)
	}
	return record, nil
}

func collectRecords(rows *sql.Rows) ([]*domain.DecisionRecord, error) {
	defer rows.Close()

	result := []*domain.DecisionRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// Append inserts record at the end of the log.
func (s *SQLiteStore) Append(ctx context.Context, record *domain.DecisionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decision_records (
			id, recorded_at, symptom, final_code, disposition_code,
			resource_cost, requires_review, threat_detected, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.Timestamp.UTC(),
		record.Symptom,
		string(record.FinalCode),
		string(record.DispositionCode),
		record.ResourceCost,
		record.RequiresReview,
		record.ThreatDetected,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Snapshot returns every record in append order.
func (s *SQLiteStore) Snapshot(ctx context.Context) ([]*domain.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM decision_records ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	return collectRecords(rows)
}

// List returns records newest first with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.DecisionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM decision_records ORDER BY seq DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	return collectRecords(rows)
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decision_records").Scan(&count)
	return count, err
}

// ExportJSON exports all decisions to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to list decisions: %w", err)
	}
	return writeExport(writer, all)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
