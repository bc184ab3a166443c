package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orion-triage-server/internal/domain"
)

// FileBaselineStore persists the baseline as a JSON document on disk.
type FileBaselineStore struct {
	path string
}

// NewFileBaselineStore creates a store writing to path.
func NewFileBaselineStore(path string) (*FileBaselineStore, error) {
	if path == "" {
		return nil, fmt.Errorf("baseline path is required")
	}
	return &FileBaselineStore{path: path}, nil
}

// SaveBaseline writes the baseline through a temp file and rename.
func (s *FileBaselineStore) SaveBaseline(ctx context.Context, baseline domain.Baseline) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(baseline, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".baseline-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close baseline: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// LoadBaseline reads the baseline. A missing file is an empty baseline. Slots
// stored as a bare number are read as a count with neutral severity.
func (s *FileBaselineStore) LoadBaseline(ctx context.Context) (domain.Baseline, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Baseline{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode baseline: %w", err)
	}

	baseline := make(domain.Baseline, len(raw))
	for key, value := range raw {
		var count float64
		if err := json.Unmarshal(value, &count); err == nil {
			baseline[key] = domain.BaselineSlot{Count: count, Severity: DefaultSeverity}
			continue
		}

		slot := domain.BaselineSlot{Severity: DefaultSeverity}
		if err := json.Unmarshal(value, &slot); err != nil {
			return nil, fmt.Errorf("failed to decode slot %s: %w", key, err)
		}
		baseline[key] = slot
	}
	return baseline, nil
}
