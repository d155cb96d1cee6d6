package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tavern-ops/barsync/internal/ingest"
	"github.com/tavern-ops/barsync/internal/model"
	"github.com/tavern-ops/barsync/internal/rawstore"
)

var (
	sweepDataType string
	sweepVenueID  int64
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Process the unprocessed-payload backlog",
	Long:  "Picks up unprocessed raw payloads oldest first and processes them in paced, bounded-concurrency sub-batches. One bad payload never stops the sweep.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		raw := rawstore.New(pool)
		runs := ingest.NewRunLog(pool)
		proc := ingest.NewProcessor(raw,
			ingest.NewCommitter(pool, cfg.Commit.ChunkSize, time.Duration(cfg.Commit.ChunkDelayMs)*time.Millisecond),
			ingest.NewGate(cfg.Commit.Threshold))
		sweeper := ingest.NewSweeper(raw, proc, ingest.SweepOptions{
			Limit:         cfg.Sweep.Limit,
			SubBatchSize:  cfg.Sweep.SubBatchSize,
			MaxWorkers:    cfg.Sweep.MaxWorkers,
			SubBatchDelay: time.Duration(cfg.Sweep.SubBatchDelayMs) * time.Millisecond,
		})

		started := time.Now()
		runID, err := runs.Start(ctx, sweepVenueID, sweepDataType, "", "sweep")
		if err != nil {
			return err
		}

		res, sweepErr := sweeper.Sweep(ctx, sweepVenueID, sweepDataType)

		var inserted int64
		for _, r := range res.Results {
			inserted += r.InsertedRecords
		}
		status := model.RunCompleted
		if res.ErrorCount > 0 {
			status = model.RunPartial
		}
		if sweepErr != nil {
			if err := runs.Fail(ctx, runID, sweepErr.Error()); err != nil {
				zap.L().Warn("could not record sweep failure", zap.Error(err))
			}
			return sweepErr
		}
		if err := runs.Complete(ctx, runID, status, res.ProcessedCount, inserted, time.Since(started)); err != nil {
			zap.L().Warn("could not record sweep completion", zap.Error(err))
		}

		zap.L().Info("sweep finished",
			zap.Int("processed", res.ProcessedCount),
			zap.Int("succeeded", res.SuccessCount),
			zap.Int("failed", res.ErrorCount),
			zap.Int64("inserted", inserted))
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepDataType, "type", "", "only sweep payloads of this data type")
	sweepCmd.Flags().Int64Var(&sweepVenueID, "venue", 0, "only sweep payloads of this venue (0 sweeps all)")
	rootCmd.AddCommand(sweepCmd)
}
