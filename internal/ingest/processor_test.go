package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavern-ops/barsync/internal/rawstore"
)

var rawCols = []string{
	"id", "venue_id", "data_type", "ref_date", "page",
	"payload", "record_count", "processed", "created_at", "processed_at",
}

func expectGetPayload(mock pgxmock.PgxPoolIface, id uuid.UUID, dataType string, body string, processed bool) {
	mock.ExpectQuery("SELECT (.+) FROM raw_payloads WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(rawCols).
			AddRow(id, int64(4), dataType, "2025-08-15", 0,
				[]byte(body), 0, processed, time.Now(), (*time.Time)(nil)))
}

func expectMarkProcessed(mock pgxmock.PgxPoolIface, id uuid.UUID) {
	mock.ExpectExec("UPDATE raw_payloads SET processed = true").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func newTestProcessor(mock pgxmock.PgxPoolIface, chunkSize int) *Processor {
	return NewProcessor(
		rawstore.New(mock),
		NewCommitter(mock, chunkSize, 0),
		NewGate(0.95),
	)
}

func TestProcessOne_HourlyEndToEnd(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	body := `{"list":[
		{"vd_dtgerencial":"2025-08-15T03:00:00Z","hora":"18:00","qtd":10,"$valor":"500,00"},
		{"vd_dtgerencial":"2025-08-15T03:00:00Z","hora":"19:00","qtd":12,"$valor":"750,25"},
		{"vd_dtgerencial":"2025-08-15T03:00:00Z","hora":"20:00","qtd":7,"$valor":"410,00"}
	]}`

	expectGetPayload(mock, id, "pos_hourly", body, false)

	hourlyCols := []string{"venue_id", "ref_date", "hour", "weekday", "qty", "revenue", "idempotency_key"}
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_pos_hourly"}, hourlyCols).WillReturnResult(3)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectCommit()

	expectMarkProcessed(mock, id)

	proc := newTestProcessor(mock, 500)
	res, err := proc.ProcessOne(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.Equal(t, "pos_hourly", res.DataType)
	assert.Equal(t, int64(4), res.VenueID)
	assert.Equal(t, 3, res.TotalRecords)
	assert.Equal(t, int64(3), res.InsertedRecords)
	assert.Empty(t, res.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOne_AlreadyProcessedShortCircuits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	expectGetPayload(mock, id, "pos_sales", `{"list":[{"trn":"1"}]}`, true)

	proc := newTestProcessor(mock, 500)
	res, err := proc.ProcessOne(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.Zero(t, res.TotalRecords)
	assert.Zero(t, res.InsertedRecords)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOne_UnknownDataType(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	expectGetPayload(mock, id, "mystery", `{"list":[]}`, false)

	proc := newTestProcessor(mock, 500)
	res, err := proc.ProcessOne(context.Background(), id)
	require.Error(t, err)
	assert.False(t, res.Processed)
	assert.Contains(t, res.Error, "unknown data type")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOne_BelowThresholdLeavesUnprocessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	body := `{"list":[
		{"vd_dtgerencial":"2025-08-15","hora":"18:00","qtd":1,"$valor":"10,00"},
		{"vd_dtgerencial":"2025-08-15","hora":"19:00","qtd":1,"$valor":"20,00"}
	]}`
	expectGetPayload(mock, id, "pos_hourly", body, false)

	hourlyCols := []string{"venue_id", "ref_date", "hour", "weekday", "qty", "revenue", "idempotency_key"}
	// Chunk size 1: first chunk lands, second fails. 1/2 inserted is
	// below the 0.95 gate, so the payload stays unprocessed.
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_pos_hourly"}, hourlyCols).WillReturnResult(1)
	mock.ExpectExec("DELETE FROM").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnError(errors.New("out of memory"))
	mock.ExpectRollback()

	proc := newTestProcessor(mock, 1)
	res, err := proc.ProcessOne(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.Processed)
	assert.Equal(t, 2, res.TotalRecords)
	assert.Equal(t, int64(1), res.InsertedRecords)
	assert.Contains(t, res.Error, "out of memory")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessOne_EmptyPayloadMarksProcessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	expectGetPayload(mock, id, "pos_sales", `{"list":[]}`, false)
	expectMarkProcessed(mock, id)

	proc := newTestProcessor(mock, 500)
	res, err := proc.ProcessOne(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Processed)
	assert.Zero(t, res.TotalRecords)
	assert.NoError(t, mock.ExpectationsWereMet())
}
