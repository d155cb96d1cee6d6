// Package rawstore persists captured feed pages exactly as received, so
// transformation can be replayed without refetching.
package rawstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/tavern-ops/barsync/internal/db"
	"github.com/tavern-ops/barsync/internal/model"
)

// Store reads and writes the raw_payloads table.
type Store struct {
	pool db.Pool
}

func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Insert captures one page of raw feed data and returns its id.
func (s *Store) Insert(ctx context.Context, p model.RawPayload) (uuid.UUID, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO raw_payloads (id, venue_id, data_type, ref_date, page, payload, record_count, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)`,
		p.ID, p.VenueID, p.DataType, p.RefDate, p.Page, p.Payload, p.RecordCount)
	if err != nil {
		return uuid.Nil, eris.Wrap(err, "rawstore: insert payload")
	}
	return p.ID, nil
}

// Get loads a single payload by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.RawPayload, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, venue_id, data_type, ref_date, page, payload, record_count, processed, created_at, processed_at
		FROM raw_payloads WHERE id = $1`, id)

	var p model.RawPayload
	err := row.Scan(&p.ID, &p.VenueID, &p.DataType, &p.RefDate, &p.Page,
		&p.Payload, &p.RecordCount, &p.Processed, &p.CreatedAt, &p.ProcessedAt)
	if err != nil {
		return nil, eris.Wrap(err, "rawstore: get payload")
	}
	return &p, nil
}

// ListUnprocessed returns up to limit unprocessed payloads, oldest first,
// optionally scoped to a venue and filtered by data type. Zero values
// leave the corresponding filter off.
func (s *Store) ListUnprocessed(ctx context.Context, venueID int64, dataType string, limit int) ([]model.RawPayload, error) {
	query := `
		SELECT id, venue_id, data_type, ref_date, page, payload, record_count, processed, created_at, processed_at
		FROM raw_payloads
		WHERE processed = false`
	args := []any{}
	if venueID != 0 {
		args = append(args, venueID)
		query += fmt.Sprintf(` AND venue_id = $%d`, len(args))
	}
	if dataType != "" {
		args = append(args, dataType)
		query += fmt.Sprintf(` AND data_type = $%d`, len(args))
	}
	query += fmt.Sprintf(` ORDER BY created_at ASC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "rawstore: list unprocessed")
	}
	defer rows.Close()

	var out []model.RawPayload
	for rows.Next() {
		var p model.RawPayload
		if err := rows.Scan(&p.ID, &p.VenueID, &p.DataType, &p.RefDate, &p.Page,
			&p.Payload, &p.RecordCount, &p.Processed, &p.CreatedAt, &p.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "rawstore: scan payload")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "rawstore: iterate payloads")
	}
	return out, nil
}

// CountUnprocessed returns the backlog size per data type.
func (s *Store) CountUnprocessed(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data_type, COUNT(*) FROM raw_payloads
		WHERE processed = false GROUP BY data_type`)
	if err != nil {
		return nil, eris.Wrap(err, "rawstore: count unprocessed")
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var dt string
		var n int64
		if err := rows.Scan(&dt, &n); err != nil {
			return nil, eris.Wrap(err, "rawstore: scan count")
		}
		counts[dt] = n
	}
	return counts, rows.Err()
}

// MarkProcessed flags a payload as done so sweeps skip it.
func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE raw_payloads SET processed = true, processed_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "rawstore: mark processed")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("rawstore: payload %s not found", id)
	}
	return nil
}
