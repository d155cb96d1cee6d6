package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	payloadsCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barsync",
		Name:      "payloads_captured_total",
		Help:      "Raw feed pages captured, by data type.",
	}, []string{"data_type"})

	payloadsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barsync",
		Name:      "payloads_processed_total",
		Help:      "Raw payloads processed, by data type and outcome.",
	}, []string{"data_type", "outcome"})

	recordsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barsync",
		Name:      "records_committed_total",
		Help:      "Normalized records upserted, by table.",
	}, []string{"table"})

	chunkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "barsync",
		Name:      "chunk_errors_total",
		Help:      "Failed upsert chunks, by table.",
	}, []string{"table"})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "barsync",
		Name:      "sweep_duration_seconds",
		Help:      "Wall time of backlog sweeps.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	processDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "barsync",
		Name:      "process_duration_seconds",
		Help:      "Per-payload processing time, by data type.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"data_type"})
)

// CapturedPayload bumps the capture counter; called by the fetch path.
func CapturedPayload(dataType string) {
	payloadsCaptured.WithLabelValues(dataType).Inc()
}
