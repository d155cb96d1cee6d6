package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tavern-ops/barsync/internal/ingest"
	"github.com/tavern-ops/barsync/internal/model"
	"github.com/tavern-ops/barsync/internal/rawstore"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync runs and backlog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runs, err := ingest.NewRunLog(pool).ListRecent(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(runs) == 0 {
			zap.L().Info("no sync runs recorded yet, run 'barsync sync' first")
			return nil
		}
		formatRuns(os.Stdout, runs)

		counts, err := rawstore.New(pool).CountUnprocessed(ctx)
		if err != nil {
			return eris.Wrap(err, "status backlog")
		}
		if len(counts) > 0 {
			fmt.Println()
			fmt.Println("Unprocessed backlog:")
			for dt, n := range counts {
				fmt.Printf("  %s: %d\n", dt, n)
			}
		}
		return nil
	},
}

// formatRuns writes a tabular representation of sync runs to w.
func formatRuns(out io.Writer, runs []model.SyncRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STARTED\tOP\tTYPE\tREF\tSTATUS\tRECORDS\tINSERTED\tDURATION\tERROR")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		errMsg := r.ErrorDetail
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Operation,
			r.DataType,
			r.RefDate,
			r.Status,
			r.Records,
			r.Inserted,
			dur,
			errMsg,
		)
	}
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 30, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}
