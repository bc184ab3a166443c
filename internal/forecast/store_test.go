package forecast

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-triage-server/internal/domain"
)

func TestFileBaselineStore_RoundTrip(t *testing.T) {
	store, err := NewFileBaselineStore(filepath.Join(t.TempDir(), "data", "model.json"))
	require.NoError(t, err)

	ctx := context.Background()
	baseline := domain.Baseline{
		"0-10": {Count: 15, Severity: 1.4, AvgWaitMinutes: 22.5},
		"6-23": {Count: 3, Severity: 1},
	}
	require.NoError(t, store.SaveBaseline(ctx, baseline))

	loaded, err := store.LoadBaseline(ctx)
	require.NoError(t, err)
	assert.Equal(t, baseline, loaded)
}

func TestFileBaselineStore_MissingFile(t *testing.T) {
	store, err := NewFileBaselineStore(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	loaded, err := store.LoadBaseline(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileBaselineStore_BareCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"0-10": 12.5, "1-8": {"count": 4}}`), 0644))

	store, err := NewFileBaselineStore(path)
	require.NoError(t, err)

	loaded, err := store.LoadBaseline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.BaselineSlot{Count: 12.5, Severity: 1}, loaded["0-10"])
	assert.Equal(t, domain.BaselineSlot{Count: 4, Severity: 1}, loaded["1-8"])
}

func TestFileBaselineStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0644))

	store, err := NewFileBaselineStore(path)
	require.NoError(t, err)

	_, err = store.LoadBaseline(context.Background())
	assert.Error(t, err)
}

func TestNewFileBaselineStore_RequiresPath(t *testing.T) {
	_, err := NewFileBaselineStore("")
	assert.Error(t, err)
}
