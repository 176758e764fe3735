// Package metrics exposes Prometheus instruments for the crawler, the
// credential pool and the tile builder.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "followgraph"

var (
	// usersProcessed counts crawl outcomes per user.
	// Labels: direction, outcome (resolved, error, retried)
	usersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "crawl",
		Name:      "users_total",
		Help:      "Users processed by the crawler by outcome",
	}, []string{"direction", "outcome"})

	// pendingUsers is the number of users left in the current crawl.
	pendingUsers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "crawl",
		Name:      "pending_users",
		Help:      "Users not yet resolved in the running crawl",
	}, []string{"direction"})

	checkpointSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkpoint",
		Name:      "saves_total",
		Help:      "Checkpoint saves by status",
	}, []string{"status"})

	checkpointDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "checkpoint",
		Name:      "save_duration_seconds",
		Help:      "Time spent writing a checkpoint",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	// acquireWait measures how long callers block for a credential.
	// Labels: kind
	acquireWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "acquire_wait_seconds",
		Help:      "Time spent waiting for an available credential",
		Buckets:   []float64{0, 0.1, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"kind"})

	// apiCalls counts remote calls by kind and error type ("ok" on success).
	apiCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "calls_total",
		Help:      "Remote API calls by kind and result",
	}, []string{"kind", "result"})

	// tilesWritten counts persisted tiles.
	// Labels: prefix, mode (computed, transposed, skipped)
	tilesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matrix",
		Name:      "tiles_total",
		Help:      "Adjacency tiles handled by the builder",
	}, []string{"prefix", "mode"})

	tileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "matrix",
		Name:      "tile_duration_seconds",
		Help:      "Time to compute one tile",
		Buckets:   []float64{0.01, 0.1, 1, 10, 60, 300, 1800, 3600},
	}, []string{"source"})
)

// RecordUser records the outcome of processing one user.
func RecordUser(direction, outcome string) {
	usersProcessed.WithLabelValues(direction, outcome).Inc()
}

// SetPending sets the number of users left to crawl.
func SetPending(direction string, n int) {
	pendingUsers.WithLabelValues(direction).Set(float64(n))
}

// RecordCheckpoint records one checkpoint save.
func RecordCheckpoint(d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	checkpointSaves.WithLabelValues(status).Inc()
	checkpointDuration.Observe(d.Seconds())
}

// RecordAcquireWait records time spent blocked in the credential pool.
func RecordAcquireWait(kind string, d time.Duration) {
	acquireWait.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordAPICall records one remote call. result is "ok" or an error type.
func RecordAPICall(kind, result string) {
	apiCalls.WithLabelValues(kind, result).Inc()
}

// RecordTile records one tile handled by the builder.
func RecordTile(prefix, mode string) {
	tilesWritten.WithLabelValues(prefix, mode).Inc()
}

// RecordTileDuration records the compute time of one tile.
func RecordTileDuration(source string, d time.Duration) {
	tileDuration.WithLabelValues(source).Observe(d.Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the endpoint.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
