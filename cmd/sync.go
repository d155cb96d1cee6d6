package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tavern-ops/barsync/internal/collector"
	"github.com/tavern-ops/barsync/internal/ingest"
	"github.com/tavern-ops/barsync/internal/rawstore"
)

var (
	syncDate      string
	syncMonth     string
	syncDataTypes []string
	syncProcess   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and capture feed data",
	Long:  "Walks the configured feeds page by page for the given date (POS) or month (ledger), capturing every page as a raw payload. With --process, payloads are transformed and committed inline.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		raw := rawstore.New(pool)
		runs := ingest.NewRunLog(pool)
		coll := collector.New(raw, runs, cfg.VenueID)
		limiter := rate.NewLimiter(rate.Limit(cfg.Sync.RatePerSecond), 1)

		posTypes, wantLedger := splitDataTypes(syncDataTypes)

		if len(posTypes) > 0 {
			sess := collector.NewPOSSession(cfg.POS)
			if err := sess.Login(ctx); err != nil {
				return err
			}
			client := sess.Client(cfg.Sync, limiter)

			for _, dt := range posTypes {
				req, err := sess.Request(dt, syncDate)
				if err != nil {
					return err
				}
				if _, err := coll.Collect(ctx, client, req, dt, syncDate); err != nil {
					return err
				}
			}
		}

		if wantLedger {
			month := syncMonth
			if month == "" && len(syncDate) >= 7 {
				month = syncDate[:7]
			}
			req, err := collector.LedgerRequest(cfg.Ledger, month)
			if err != nil {
				return err
			}
			client := collector.LedgerClient(cfg.Ledger, cfg.Sync, limiter)
			if _, err := coll.Collect(ctx, client, req, "ledger_entries", month); err != nil {
				return err
			}
		}

		if syncProcess {
			proc := ingest.NewProcessor(raw,
				ingest.NewCommitter(pool, cfg.Commit.ChunkSize, time.Duration(cfg.Commit.ChunkDelayMs)*time.Millisecond),
				ingest.NewGate(cfg.Commit.Threshold))
			sweeper := ingest.NewSweeper(raw, proc, ingest.SweepOptions{
				Limit:         cfg.Sweep.Limit,
				SubBatchSize:  cfg.Sweep.SubBatchSize,
				MaxWorkers:    cfg.Sweep.MaxWorkers,
				SubBatchDelay: time.Duration(cfg.Sweep.SubBatchDelayMs) * time.Millisecond,
			})
			res, err := sweeper.Sweep(ctx, cfg.VenueID, "")
			if err != nil {
				return err
			}
			zap.L().Info("inline processing finished",
				zap.Int("processed", res.ProcessedCount),
				zap.Int("succeeded", res.SuccessCount),
				zap.Int("failed", res.ErrorCount))
		}

		return nil
	},
}

// splitDataTypes partitions the requested data types into POS types and
// the ledger flag.
func splitDataTypes(types []string) ([]string, bool) {
	var pos []string
	ledger := false
	for _, dt := range types {
		if dt == "ledger_entries" {
			ledger = true
		} else {
			pos = append(pos, dt)
		}
	}
	return pos, ledger
}

func init() {
	syncCmd.Flags().StringVar(&syncDate, "date", time.Now().AddDate(0, 0, -1).Format("2006-01-02"), "business date to fetch (POS feeds)")
	syncCmd.Flags().StringVar(&syncMonth, "month", "", "accrual month to fetch (ledger feed, default from --date)")
	syncCmd.Flags().StringSliceVar(&syncDataTypes, "types", []string{"pos_sales", "pos_payments", "pos_hourly", "pos_product_hourly", "ledger_entries"}, "data types to fetch")
	syncCmd.Flags().BoolVar(&syncProcess, "process", false, "process captured payloads inline after fetching")
	rootCmd.AddCommand(syncCmd)
}
