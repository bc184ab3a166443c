package decisionlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-triage-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "decisions.db"))
	require.NoError(t, err)
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "decisions.db")

	// Act
	store, err := NewSQLiteStore(dbPath)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("")
	assert.Error(t, err)
}

func TestSQLiteStore_AppendAndSnapshot(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	at := time.Date(2024, 5, 6, 14, 0, 0, 0, time.UTC)

	first := sampleRecord("a", domain.CodeEmergency, at)
	first.VitalAlerts = map[string]string{"heart_rate": "CRITICAL"}
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, sampleRecord("b", domain.CodeLowComplexity, at.Add(time.Minute))))

	snapshot, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	assert.Equal(t, "a", snapshot[0].ID)
	assert.True(t, snapshot[0].Timestamp.Equal(at))
	assert.Equal(t, domain.DispositionUrgent, snapshot[0].Disposition)
	assert.Equal(t, "CRITICAL", snapshot[0].VitalAlerts["heart_rate"])
	assert.Equal(t, first.AskedQuestions, snapshot[0].AskedQuestions)

	assert.Equal(t, "b", snapshot[1].ID)
	assert.True(t, snapshot[1].AlternateRouting)
}

func TestSQLiteStore_RejectsDuplicateID(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, sampleRecord("dup", domain.CodeConsult, time.Now())))
	assert.Error(t, store.Append(ctx, sampleRecord("dup", domain.CodeConsult, time.Now())))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteStore_List(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Append(ctx, sampleRecord(fmt.Sprintf("r%d", i), domain.CodeUrgent, time.Now())))
	}

	page, err := store.List(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "r3", page[0].ID)

	all, err := store.List(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r2", all[0].ID)
}

func TestSQLiteStore_ExportJSON(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, sampleRecord("a", domain.CodeEmergency, time.Now())))
	require.NoError(t, store.Append(ctx, sampleRecord("b", domain.CodeConsult, time.Now())))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	var export DecisionExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &export))
	assert.Equal(t, 2, export.Count)
	assert.Equal(t, "a", export.Decisions[0].ID)
	assert.False(t, export.ExportedAt.IsZero())
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "decisions.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, sampleRecord("kept", domain.CodeUrgent, time.Now())))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	snapshot, err := reopened.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "kept", snapshot[0].ID)
}
