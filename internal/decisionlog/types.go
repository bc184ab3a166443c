// Package decisionlog provides the append-only audit trail of triage decisions
// and the reporting built on top of it.
package decisionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/orion-triage-server/internal/domain"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ExportVersion is written into every export document.
const ExportVersion = "1.0"

// Store is an append-only decision log. Records are never updated or deleted.
type Store interface {
	domain.DecisionLog

	// List returns records newest first with pagination.
	List(ctx context.Context, limit, offset int) ([]*domain.DecisionRecord, error)

	// ExportJSON writes every record, oldest first, to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error
}

// DecisionExport represents the JSON export format.
type DecisionExport struct {
	Version    string                   `json:"version"`
	ExportedAt time.Time                `json:"exported_at"`
	Count      int                      `json:"count"`
	Decisions  []*domain.DecisionRecord `json:"decisions"`
}

// Open creates the store selected by cfg.Backend.
func Open(cfg domain.DecisionLogConfig) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case BackendPostgres:
		return NewPostgresStoreFromURL(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown decision log backend %q", cfg.Backend)
	}
}

func writeExport(writer io.Writer, records []*domain.DecisionRecord) error {
	if records == nil {
		records = []*domain.DecisionRecord{}
	}
	export := &DecisionExport{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Decisions:  records,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func validateRecord(record *domain.DecisionRecord) error {
	if record == nil {
		return fmt.Errorf("decision record is required")
	}
	if record.ID == "" {
		return domain.NewValidationError("id", "decision record id is required", "")
	}
	return nil
}
