package rawstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavern-ops/barsync/internal/model"
)

func TestInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO raw_payloads").
		WithArgs(pgxmock.AnyArg(), int64(3), "pos_sales", "2025-08-15", 2,
			[]byte(`{"list":[]}`), 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := New(mock)
	id, err := store.Insert(context.Background(), model.RawPayload{
		VenueID:  3,
		DataType: "pos_sales",
		RefDate:  "2025-08-15",
		Page:     2,
		Payload:  []byte(`{"list":[]}`),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnprocessed_OldestFirst(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	earlier := now.Add(-time.Hour)
	idA, idB := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM raw_payloads").
		WithArgs("pos_sales", 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "venue_id", "data_type", "ref_date", "page",
			"payload", "record_count", "processed", "created_at", "processed_at",
		}).
			AddRow(idA, int64(1), "pos_sales", "2025-08-01", 0, []byte(`{}`), 5, false, earlier, (*time.Time)(nil)).
			AddRow(idB, int64(1), "pos_sales", "2025-08-02", 0, []byte(`{}`), 7, false, now, (*time.Time)(nil)))

	store := New(mock)
	got, err := store.ListUnprocessed(context.Background(), 0, "pos_sales", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, idA, got[0].ID)
	assert.Equal(t, idB, got[1].ID)
	assert.True(t, got[0].CreatedAt.Before(got[1].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnprocessed_VenueScoped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM raw_payloads\s+WHERE processed = false AND venue_id = \$1 AND data_type = \$2`).
		WithArgs(int64(7), "pos_sales", 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "venue_id", "data_type", "ref_date", "page",
			"payload", "record_count", "processed", "created_at", "processed_at",
		}).AddRow(id, int64(7), "pos_sales", "2025-08-01", 0, []byte(`{}`), 5, false, time.Now(), (*time.Time)(nil)))

	store := New(mock)
	got, err := store.ListUnprocessed(context.Background(), 7, "pos_sales", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].VenueID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessed_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE raw_payloads SET processed = true").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := New(mock)
	err = store.MarkProcessed(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUnprocessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT data_type, COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"data_type", "count"}).
			AddRow("pos_sales", int64(12)).
			AddRow("ledger_entries", int64(3)))

	store := New(mock)
	counts, err := store.CountUnprocessed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), counts["pos_sales"])
	assert.Equal(t, int64(3), counts["ledger_entries"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
