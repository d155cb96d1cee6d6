// Package ingest is the processing side of the pipeline: it turns captured
// raw payloads into normalized rows, commits them in chunks, gates the
// processed flag on the insert ratio, and sweeps backlogs concurrently.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/tavern-ops/barsync/internal/db"
	"github.com/tavern-ops/barsync/internal/model"
)

// RunLog provides read/write access to the sync_runs table. Every fetch
// run, single processing, and sweep is recorded.
type RunLog struct {
	pool db.Pool
}

func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a run and returns its id.
func (l *RunLog) Start(ctx context.Context, venueID int64, dataType, refDate, operation string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := l.pool.Exec(ctx,
		`INSERT INTO sync_runs (id, venue_id, data_type, ref_date, operation, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		id, venueID, dataType, refDate, operation, model.RunRunning)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "runlog: start %s run", operation)
	}
	return id, nil
}

// Complete marks a run finished with the given status and counts.
func (l *RunLog) Complete(ctx context.Context, id uuid.UUID, status string, records int, inserted int64, elapsed time.Duration) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE sync_runs
		 SET status = $1, records = $2, inserted = $3, elapsed_ms = $4, finished_at = now()
		 WHERE id = $5`,
		status, records, inserted, elapsed.Milliseconds(), id)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", id)
	}
	return nil
}

// Fail marks a run failed with an error message.
func (l *RunLog) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE sync_runs
		 SET status = $1, error_detail = $2, finished_at = now()
		 WHERE id = $3`,
		model.RunFailed, errMsg, id)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", id)
	}
	return nil
}

// ListRecent returns the most recent runs, newest first.
func (l *RunLog) ListRecent(ctx context.Context, limit int) ([]model.SyncRun, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, venue_id, data_type, ref_date, operation, status,
		        records, inserted, elapsed_ms, error_detail, started_at, finished_at
		 FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list recent")
	}
	defer rows.Close()

	var runs []model.SyncRun
	for rows.Next() {
		var r model.SyncRun
		var errDetail *string
		if err := rows.Scan(&r.ID, &r.VenueID, &r.DataType, &r.RefDate, &r.Operation,
			&r.Status, &r.Records, &r.Inserted, &r.ElapsedMs, &errDetail,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		if errDetail != nil {
			r.ErrorDetail = *errDetail
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
