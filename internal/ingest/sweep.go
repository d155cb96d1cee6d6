package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tavern-ops/barsync/internal/model"
	"github.com/tavern-ops/barsync/internal/rawstore"
)

// SweepOptions bounds a backlog sweep.
type SweepOptions struct {
	// Limit caps how many unprocessed payloads one sweep picks up.
	Limit int

	// SubBatchSize groups payloads between pacing pauses.
	SubBatchSize int

	// MaxWorkers bounds concurrent payload processing within a sub-batch.
	MaxWorkers int

	// SubBatchDelay is the pause between sub-batches.
	SubBatchDelay time.Duration
}

func (o SweepOptions) normalized() SweepOptions {
	if o.Limit <= 0 {
		o.Limit = 500
	}
	if o.SubBatchSize <= 0 {
		o.SubBatchSize = 100
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 5
	}
	return o
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	ProcessedCount int            `json:"processed_count"`
	SuccessCount   int            `json:"success_count"`
	ErrorCount     int            `json:"error_count"`
	Results        []model.Result `json:"results"`
}

// Sweeper drains the unprocessed-payload backlog: oldest first, bounded
// fan-out, paced between sub-batches. One failing payload never stops
// the sweep.
type Sweeper struct {
	raw  *rawstore.Store
	proc *Processor
	opts SweepOptions
	log  *zap.Logger
}

func NewSweeper(raw *rawstore.Store, proc *Processor, opts SweepOptions) *Sweeper {
	return &Sweeper{
		raw:  raw,
		proc: proc,
		opts: opts.normalized(),
		log:  zap.L().With(zap.String("component", "sweeper")),
	}
}

// Sweep processes up to Limit unprocessed payloads, optionally scoped to
// one venue and filtered by data type. Cancellation is honored between
// sub-batches; the partial result is returned along with the context error.
func (s *Sweeper) Sweep(ctx context.Context, venueID int64, dataType string) (SweepResult, error) {
	started := time.Now()
	var result SweepResult

	payloads, err := s.raw.ListUnprocessed(ctx, venueID, dataType, s.opts.Limit)
	if err != nil {
		return result, err
	}
	if len(payloads) == 0 {
		s.log.Info("sweep: backlog empty", zap.String("data_type", dataType))
		return result, nil
	}

	s.log.Info("sweep: starting",
		zap.Int64("venue_id", venueID),
		zap.Int("backlog", len(payloads)),
		zap.Int("sub_batch_size", s.opts.SubBatchSize),
		zap.Int("max_workers", s.opts.MaxWorkers))

	for lo := 0; lo < len(payloads); lo += s.opts.SubBatchSize {
		if err := ctx.Err(); err != nil {
			s.log.Warn("sweep: cancelled", zap.Int("processed", result.ProcessedCount))
			return result, err
		}

		hi := min(lo+s.opts.SubBatchSize, len(payloads))
		batch := payloads[lo:hi]

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.MaxWorkers)
		for _, p := range batch {
			g.Go(func() error {
				res, err := s.proc.ProcessOne(gctx, p.ID)
				if err != nil && res.Error == "" {
					res.Error = err.Error()
				}
				mu.Lock()
				result.Results = append(result.Results, res)
				result.ProcessedCount++
				if res.Processed {
					result.SuccessCount++
				} else {
					result.ErrorCount++
				}
				mu.Unlock()
				// Errors are carried in the result, not returned: a bad
				// payload must not cancel its siblings.
				return nil
			})
		}
		_ = g.Wait()

		if s.opts.SubBatchDelay > 0 && hi < len(payloads) {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(s.opts.SubBatchDelay):
			}
		}
	}

	sweepDuration.Observe(time.Since(started).Seconds())
	s.log.Info("sweep: done",
		zap.Int("processed", result.ProcessedCount),
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", result.ErrorCount),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}
