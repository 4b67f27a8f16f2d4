// Package metrics exposes Prometheus collectors for a scraping run.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry       *prometheus.Registry
	RowsTotal      *prometheus.CounterVec
	RowRetries     prometheus.Counter
	RowDuration    prometheus.Histogram
	NestedOpened   prometheus.Counter
	FilesSaved     prometheus.Counter
	FilesSkipped   prometheus.Counter
	ErrorsTotal    *prometheus.CounterVec
	LastRunSuccess prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	rows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrs_rows_total",
			Help: "Table rows processed, by outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vrs_row_retries_total",
			Help: "Row attempts repeated after an empty result.",
		},
	)
	rowDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vrs_row_duration_seconds",
			Help:    "Time spent on one row attempt.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
	nested := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vrs_nested_items_opened_total",
			Help: "Nested detail items opened.",
		},
	)
	saved := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vrs_files_saved_total",
			Help: "Artifacts downloaded and renamed.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vrs_files_skipped_total",
			Help: "Artifacts skipped because they were already processed.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrs_errors_total",
			Help: "Errors by kind.",
		},
		[]string{"kind"},
	)
	lastRun := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vrs_last_run_success",
			Help: "1 when the last run finished without a fatal error.",
		},
	)

	registry.MustRegister(rows, retries, rowDuration, nested, saved, skipped, errorsTotal, lastRun)

	return &Metrics{
		Registry:       registry,
		RowsTotal:      rows,
		RowRetries:     retries,
		RowDuration:    rowDuration,
		NestedOpened:   nested,
		FilesSaved:     saved,
		FilesSkipped:   skipped,
		ErrorsTotal:    errorsTotal,
		LastRunSuccess: lastRun,
	}
}

// IncRow counts a finished row with outcome "accepted" or "empty".
func (m *Metrics) IncRow(outcome string) {
	if m == nil {
		return
	}
	m.RowsTotal.WithLabelValues(outcome).Inc()
}

// IncRetry counts a repeated row attempt.
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.RowRetries.Inc()
}

// ObserveRow records the duration of one row attempt.
func (m *Metrics) ObserveRow(d time.Duration) {
	if m == nil {
		return
	}
	m.RowDuration.Observe(d.Seconds())
}

// IncNested counts an opened nested item.
func (m *Metrics) IncNested() {
	if m == nil {
		return
	}
	m.NestedOpened.Inc()
}

// IncSaved counts a renamed artifact.
func (m *Metrics) IncSaved() {
	if m == nil {
		return
	}
	m.FilesSaved.Inc()
}

// IncSkipped counts an artifact skipped as already processed.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.FilesSkipped.Inc()
}

// IncError increments the errors counter for a kind label.
func (m *Metrics) IncError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// SetLastRun records whether the last run succeeded.
func (m *Metrics) SetLastRun(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
}

// Serve exposes the registry on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("Serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", slog.Any("error", err))
		}
	}()
}
