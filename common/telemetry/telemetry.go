package telemetry

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lyzr/medialedger/common/logger"
)

// Telemetry holds observability components
type Telemetry struct {
	log         *logger.Logger
	pprofAddr   string
	metricsAddr string
	registry    *prometheus.Registry

	Uploads            prometheus.Counter
	DedupHits          prometheus.Counter
	AssetsPurged       *prometheus.CounterVec
	RemoteDeleteFailed prometheus.Counter
	OrphanedBlobs      prometheus.Counter
}

// New creates telemetry components
func New(pprofPort, metricsPort int, log *logger.Logger) *Telemetry {
	registry := prometheus.NewRegistry()

	t := &Telemetry{
		log:         log,
		pprofAddr:   fmt.Sprintf("localhost:%d", pprofPort),
		metricsAddr: fmt.Sprintf(":%d", metricsPort),
		registry:    registry,
		Uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medialedger_uploads_total",
			Help: "Uploads accepted, including dedup hits.",
		}),
		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medialedger_dedup_hits_total",
			Help: "Uploads resolved to an existing asset by content hash.",
		}),
		AssetsPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medialedger_assets_purged_total",
			Help: "Ledger records hard-deleted by the reclaimer.",
		}, []string{"sweep"}),
		RemoteDeleteFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medialedger_remote_delete_failures_total",
			Help: "Remote blob destroys that failed and were left for a later run.",
		}),
		OrphanedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medialedger_orphaned_blobs_total",
			Help: "Blobs uploaded whose ledger record creation failed.",
		}),
	}

	registry.MustRegister(t.Uploads, t.DedupHits, t.AssetsPurged, t.RemoteDeleteFailed, t.OrphanedBlobs)

	return t
}

// Start starts telemetry endpoints
func (t *Telemetry) Start(ctx context.Context) error {
	// Start pprof server
	go func() {
		t.log.Info("pprof server starting", "addr", t.pprofAddr)
		if err := http.ListenAndServe(t.pprofAddr, nil); err != nil {
			t.log.Error("pprof server error", "error", err)
		}
	}()

	// Start Prometheus metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{}))
		t.log.Info("metrics server starting", "addr", t.metricsAddr)
		if err := http.ListenAndServe(t.metricsAddr, mux); err != nil {
			t.log.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// RecordDuration records operation duration
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	duration := time.Since(start)
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
}
