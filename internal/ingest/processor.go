package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tavern-ops/barsync/internal/model"
	"github.com/tavern-ops/barsync/internal/rawstore"
	"github.com/tavern-ops/barsync/internal/transform"
)

// Processor is the single entry point for turning one raw payload into
// committed normalized rows. Reprocessing an already-processed payload is
// a no-op success.
type Processor struct {
	raw       *rawstore.Store
	committer *Committer
	gate      Gate
	log       *zap.Logger
}

func NewProcessor(raw *rawstore.Store, committer *Committer, gate Gate) *Processor {
	return &Processor{
		raw:       raw,
		committer: committer,
		gate:      gate,
		log:       zap.L().With(zap.String("component", "processor")),
	}
}

// ProcessOne loads, transforms, and commits a single raw payload. The
// returned Result carries counts either way; the error is reserved for
// failures before any rows could be attempted (missing payload, unknown
// data type, undecodable envelope).
func (p *Processor) ProcessOne(ctx context.Context, rawID uuid.UUID) (model.Result, error) {
	started := time.Now()
	res := model.Result{RawID: rawID}

	payload, err := p.raw.Get(ctx, rawID)
	if err != nil {
		res.Error = err.Error()
		return res, eris.Wrapf(err, "processor: load payload %s", rawID)
	}
	res.VenueID = payload.VenueID
	res.DataType = payload.DataType

	if payload.Processed {
		// Already done: idempotent success, nothing inserted.
		res.Processed = true
		res.ElapsedMs = time.Since(started).Milliseconds()
		return res, nil
	}

	spec, err := transform.Get(payload.DataType)
	if err != nil {
		res.Error = err.Error()
		payloadsProcessed.WithLabelValues(payload.DataType, "error").Inc()
		return res, err
	}

	rows, err := spec.Parse(payload.VenueID, payload.RefDate, payload.Payload)
	if err != nil {
		res.Error = err.Error()
		payloadsProcessed.WithLabelValues(payload.DataType, "error").Inc()
		return res, eris.Wrapf(err, "processor: parse payload %s", rawID)
	}
	res.TotalRecords = len(rows)

	stats, err := p.committer.Commit(ctx, spec.Upsert(), rows)
	res.InsertedRecords = stats.Inserted
	if err != nil {
		res.Error = err.Error()
		payloadsProcessed.WithLabelValues(payload.DataType, "error").Inc()
		return res, err
	}
	if len(stats.Errors) > 0 {
		res.Error = stats.Errors[0].Message
	}

	if p.gate.Allow(stats.Inserted, len(rows)) {
		if err := p.raw.MarkProcessed(ctx, rawID); err != nil {
			res.Error = err.Error()
			return res, err
		}
		res.Processed = true
		payloadsProcessed.WithLabelValues(payload.DataType, "ok").Inc()
	} else {
		p.log.Warn("insert ratio below threshold, leaving payload unprocessed",
			zap.String("raw_id", rawID.String()),
			zap.String("data_type", payload.DataType),
			zap.Int("total", len(rows)),
			zap.Int64("inserted", stats.Inserted),
			zap.Float64("ratio", p.gate.Ratio(stats.Inserted, len(rows))))
		payloadsProcessed.WithLabelValues(payload.DataType, "partial").Inc()
	}

	res.ElapsedMs = time.Since(started).Milliseconds()
	processDuration.WithLabelValues(payload.DataType).Observe(time.Since(started).Seconds())
	return res, nil
}
