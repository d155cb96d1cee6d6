package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tavern-ops/barsync/internal/ingest"
	"github.com/tavern-ops/barsync/internal/rawstore"
)

var processCmd = &cobra.Command{
	Use:   "process <raw-payload-id>",
	Short: "Process a single captured payload",
	Long:  "Transforms one raw payload and commits its records. Reprocessing an already-processed payload is a no-op success.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrapf(err, "invalid raw payload id %q", args[0])
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		raw := rawstore.New(pool)
		proc := ingest.NewProcessor(raw,
			ingest.NewCommitter(pool, cfg.Commit.ChunkSize, time.Duration(cfg.Commit.ChunkDelayMs)*time.Millisecond),
			ingest.NewGate(cfg.Commit.Threshold))

		res, procErr := proc.ProcessOne(ctx, id)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)

		return procErr
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}
