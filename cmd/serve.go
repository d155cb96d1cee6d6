package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tavern-ops/barsync/internal/ingest"
	"github.com/tavern-ops/barsync/internal/rawstore"
	"github.com/tavern-ops/barsync/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP processing trigger",
	Long:  "Serves the process trigger (POST /v1/process), run log (GET /v1/runs), backlog counts (GET /v1/backlog), health, and Prometheus metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: server.New(raw, runs, proc, sweeper).Router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
