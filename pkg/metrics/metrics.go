// Package metrics registers the Prometheus collectors for the import engine.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PreviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookkeeper",
		Subsystem: "import",
		Name:      "previews_total",
		Help:      "Import previews by mode and result.",
	}, []string{"mode", "result"})

	CommitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookkeeper",
		Subsystem: "import",
		Name:      "commits_total",
		Help:      "Import commits by mode and result.",
	}, []string{"mode", "result"})

	RowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookkeeper",
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Committed rows by outcome.",
	}, []string{"outcome"})

	DocumentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookkeeper",
		Subsystem: "import",
		Name:      "documents_total",
		Help:      "Archive documents by result (linked, failed, swept).",
	}, []string{"result"})

	CommitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bookkeeper",
		Subsystem: "import",
		Name:      "commit_duration_seconds",
		Help:      "Wall time of a commit.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"mode"})
)

// Serve exposes /metrics on port until ctx is done.
func Serve(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", slog.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
