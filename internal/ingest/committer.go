package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tavern-ops/barsync/internal/db"
)

// Committer writes normalized rows in bounded chunks, each in its own
// transaction, so one bad chunk cannot take down its neighbors.
type Committer struct {
	pool       db.Pool
	chunkSize  int
	chunkDelay time.Duration
	log        *zap.Logger
}

// ChunkError records one failed chunk for the commit summary.
type ChunkError struct {
	Chunk   int    `json:"chunk"`
	Records int    `json:"records"`
	Message string `json:"message"`
}

// CommitStats summarizes a multi-chunk commit.
type CommitStats struct {
	Total    int          `json:"total"`
	Inserted int64        `json:"inserted"`
	Errors   []ChunkError `json:"errors,omitempty"`
}

func NewCommitter(pool db.Pool, chunkSize int, chunkDelay time.Duration) *Committer {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &Committer{
		pool:       pool,
		chunkSize:  chunkSize,
		chunkDelay: chunkDelay,
		log:        zap.L().With(zap.String("component", "committer")),
	}
}

// Commit upserts rows into cfg.Table chunk by chunk. A failing chunk is
// recorded and skipped; remaining chunks still run. The returned error is
// non-nil only when the context dies mid-commit.
func (c *Committer) Commit(ctx context.Context, cfg db.UpsertConfig, rows [][]any) (CommitStats, error) {
	stats := CommitStats{Total: len(rows)}
	if len(rows) == 0 {
		return stats, nil
	}

	chunks := (len(rows) + c.chunkSize - 1) / c.chunkSize
	for i := 0; i < chunks; i++ {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "committer: cancelled mid-commit")
		}

		lo := i * c.chunkSize
		hi := min(lo+c.chunkSize, len(rows))
		chunk := rows[lo:hi]

		n, err := db.BulkUpsert(ctx, c.pool, cfg, chunk)
		if err != nil {
			stats.Errors = append(stats.Errors, ChunkError{
				Chunk:   i,
				Records: len(chunk),
				Message: err.Error(),
			})
			c.log.Warn("chunk failed",
				zap.String("table", cfg.Table),
				zap.Int("chunk", i),
				zap.Int("records", len(chunk)),
				zap.Error(err))
		} else {
			stats.Inserted += n
		}

		if c.chunkDelay > 0 && i < chunks-1 {
			select {
			case <-ctx.Done():
				return stats, eris.Wrap(ctx.Err(), "committer: cancelled between chunks")
			case <-time.After(c.chunkDelay):
			}
		}
	}

	recordsCommitted.WithLabelValues(cfg.Table).Add(float64(stats.Inserted))
	chunkErrors.WithLabelValues(cfg.Table).Add(float64(len(stats.Errors)))
	return stats, nil
}
