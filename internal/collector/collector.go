// Package collector drives the fetch side of the pipeline: it walks the
// external feeds page by page and captures every page verbatim as a raw
// payload, logging each run. Transformation happens later, from the
// captured payloads, never inline with the network.
package collector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tavern-ops/barsync/internal/ingest"
	"github.com/tavern-ops/barsync/internal/model"
	"github.com/tavern-ops/barsync/internal/rawstore"
	"github.com/tavern-ops/barsync/internal/source"
)

// Collector fetches feed pages and captures them.
type Collector struct {
	raw     *rawstore.Store
	runs    *ingest.RunLog
	venueID int64
	log     *zap.Logger
}

func New(raw *rawstore.Store, runs *ingest.RunLog, venueID int64) *Collector {
	return &Collector{
		raw:     raw,
		runs:    runs,
		venueID: venueID,
		log:     zap.L().With(zap.String("component", "collector")),
	}
}

// Stats summarizes one collect run.
type Stats struct {
	Pages   int
	Records int
}

// Collect walks the feed behind client with the given request, capturing
// each non-empty page as one raw payload. The run is recorded in
// sync_runs either way.
func (c *Collector) Collect(ctx context.Context, client *source.Client, req source.Request, dataType, refDate string) (Stats, error) {
	started := time.Now()
	var stats Stats

	runID, err := c.runs.Start(ctx, c.venueID, dataType, refDate, "fetch")
	if err != nil {
		return stats, err
	}

	total, err := client.FetchAll(ctx, req, func(p source.Page) error {
		_, insErr := c.raw.Insert(ctx, model.RawPayload{
			VenueID:     c.venueID,
			DataType:    dataType,
			RefDate:     refDate,
			Page:        p.Index,
			Payload:     p.Body,
			RecordCount: p.Count,
		})
		if insErr != nil {
			return insErr
		}
		stats.Pages++
		ingest.CapturedPayload(dataType)
		return nil
	})
	stats.Records = total

	if err != nil {
		if failErr := c.runs.Fail(ctx, runID, err.Error()); failErr != nil {
			c.log.Warn("could not record run failure", zap.Error(failErr))
		}
		return stats, eris.Wrapf(err, "collector: fetch %s for %s", dataType, refDate)
	}

	if err := c.runs.Complete(ctx, runID, model.RunCompleted, total, 0, time.Since(started)); err != nil {
		c.log.Warn("could not record run completion", zap.Error(err))
	}

	c.log.Info("collected",
		zap.String("data_type", dataType),
		zap.String("ref_date", refDate),
		zap.Int("pages", stats.Pages),
		zap.Int("records", total),
		zap.Duration("elapsed", time.Since(started)))
	return stats, nil
}
