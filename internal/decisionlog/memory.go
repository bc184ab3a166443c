package decisionlog

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/orion-triage-server/internal/domain"
)

// MemoryStore keeps the decision log in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*domain.DecisionRecord
	ids     map[string]struct{}
}

// NewMemoryStore creates an empty in-memory decision log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

// Append stores a copy of record at the end of the log.
func (s *MemoryStore) Append(ctx context.Context, record *domain.DecisionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[record.ID]; exists {
		return fmt.Errorf("decision record %s already logged", record.ID)
	}
	s.ids[record.ID] = struct{}{}
	s.records = append(s.records, record.Clone())
	return nil
}

// Snapshot returns copies of every record in append order.
func (s *MemoryStore) Snapshot(ctx context.Context) ([]*domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.DecisionRecord, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]*domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	var out []*domain.DecisionRecord
	for i := len(s.records) - 1 - offset; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.records[i].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

func (s *MemoryStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	records, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	return writeExport(writer, records)
}

func (s *MemoryStore) Close() error {
	return nil
}
