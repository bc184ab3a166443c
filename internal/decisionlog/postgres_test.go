package decisionlog

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orion-triage-server/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Append(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	record := sampleRecord("a", domain.CodeEmergency, time.Now())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO decision_records")).
		WithArgs("a", sqlmock.AnyArg(), "dolor toracico", "D1", "D1", 0.0014, false, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Append(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendError(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO decision_records")).
		WillReturnError(errors.New("unique violation"))

	err := store.Append(context.Background(), sampleRecord("a", domain.CodeEmergency, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unique violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Snapshot(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	first, err := json.Marshal(sampleRecord("a", domain.CodeUrgent, time.Now()))
	require.NoError(t, err)
	second, err := json.Marshal(sampleRecord("b", domain.CodeConsult, time.Now()))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM decision_records ORDER BY seq ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(first).AddRow(second))

	snapshot, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	assert.Equal(t, "a", snapshot[0].ID)
	assert.Equal(t, domain.CodeConsult, snapshot[1].FinalCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SnapshotCorruptPayload(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM decision_records")).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte("{not json")))

	_, err := store.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	payload, err := json.Marshal(sampleRecord("z", domain.CodeUrgent, time.Now()))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY seq DESC LIMIT $1 OFFSET $2")).
		WithArgs(10, 5).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	page, err := store.List(context.Background(), 10, 5)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "z", page[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM decision_records")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
