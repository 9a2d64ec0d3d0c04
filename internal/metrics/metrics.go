// Package metrics provides the Prometheus metrics of one ETL run.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/zeebo/errs"
)

// Error is the error class for metrics export.
var Error = errs.Class("metrics")

const namespace = "sparkify_etl"

// Metrics holds the collectors of a run, registered on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	// FilesRead counts input files fetched by dataset (song_data, log_data).
	FilesRead *prometheus.CounterVec
	// RecordsRead counts decoded input lines by dataset and decode status.
	RecordsRead *prometheus.CounterVec
	// RowsWritten counts rows written per output table.
	RowsWritten *prometheus.CounterVec
	// SongplayEvents counts song plays by join outcome.
	SongplayEvents *prometheus.CounterVec
	// StageDuration observes the wall time of each pipeline stage.
	StageDuration *prometheus.HistogramVec
	// StorageOperations counts object store calls by operation and status.
	StorageOperations *prometheus.CounterVec
}

// New registers the run collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FilesRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_read_total",
				Help:      "Total number of input files read by dataset",
			},
			[]string{"dataset"},
		),
		RecordsRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_read_total",
				Help:      "Total number of input records by dataset and decode status",
			},
			[]string{"dataset", "status"},
		),
		RowsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_written_total",
				Help:      "Total number of rows written by table",
			},
			[]string{"table"},
		),
		SongplayEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "songplay_events_total",
				Help:      "Total number of song plays by join outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"stage"},
		),
		StorageOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total storage operations",
			},
			[]string{"operation", "status"}, // operation=list/get/put/delete, status=success/failure
		),
	}
}

// ObserveStorage counts one store call.
func (m *Metrics) ObserveStorage(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.StorageOperations.WithLabelValues(operation, status).Inc()
}

// ObserveStage records how long stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Push sends every collector to the Pushgateway at url under job, replacing the
// previous group of that job and instance.
func (m *Metrics) Push(ctx context.Context, url, job, instance string) error {
	pusher := push.New(url, job).Gatherer(m.Registry)
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return Error.New("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
