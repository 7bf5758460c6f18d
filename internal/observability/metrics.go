// Package observability sets up logging and Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wncat"

// Metrics holds the Prometheus counters, histograms, and gauges for catalog sync runs.
type Metrics struct {
	// Item outcomes; label collection.
	ItemsCreated       *prometheus.CounterVec
	ItemsSkipped       *prometheus.CounterVec
	ItemsFailed        *prometheus.CounterVec
	ItemsOutsideRegion *prometheus.CounterVec
	FallbackTimestamps *prometheus.CounterVec

	InvalidDocuments *prometheus.CounterVec // labels: kind={item,collection,catalog}
	UploadRetries    prometheus.Counter
	ObjectsPurged    *prometheus.CounterVec // labels: prefix
	EventsPublished  prometheus.Counter

	BucketDuration *prometheus.HistogramVec // labels: collection
	Runs           *prometheus.CounterVec   // labels: outcome={success,error}
	LastRunSuccess prometheus.Gauge
	SyncRunning    prometheus.Gauge
}

func newMetrics(help bool) *Metrics {
	h := func(s string) string {
		if help {
			return s
		}
		return ""
	}
	return &Metrics{
		ItemsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_created_total",
			Help:      h("Items built and published."),
		}, []string{"collection"}),
		ItemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      h("Source assets already represented in the catalog."),
		}, []string{"collection"}),
		ItemsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_failed_total",
			Help:      h("Source assets whose processing aborted."),
		}, []string{"collection"}),
		ItemsOutsideRegion: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_outside_region_total",
			Help:      h("Source assets skipped because they intersect no configured region."),
		}, []string{"collection"}),
		FallbackTimestamps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_timestamps_total",
			Help:      h("Source filenames without a recognizable date."),
		}, []string{"collection"}),
		InvalidDocuments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_documents_total",
			Help:      h("Documents that failed schema validation."),
		}, []string{"kind"}),
		UploadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_retries_total",
			Help:      h("Store writes retried after a transient failure."),
		}),
		ObjectsPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_purged_total",
			Help:      h("Objects deleted by retention rules."),
		}, []string{"prefix"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      h("Catalog events written to Kafka."),
		}),
		BucketDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bucket_duration_seconds",
			Help:      h("Time spent reconciling one day of one collection."),
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"collection"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      h("Completed sync runs by outcome."),
		}, []string{"outcome"}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      h("Unix time of the last successful run."),
		}),
		SyncRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_running",
			Help:      h("1 while a sync run is in progress."),
		}),
	}
}

// NewMetrics creates and registers all sync metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.ItemsCreated,
		m.ItemsSkipped,
		m.ItemsFailed,
		m.ItemsOutsideRegion,
		m.FallbackTimestamps,
		m.InvalidDocuments,
		m.UploadRetries,
		m.ObjectsPurged,
		m.EventsPublished,
		m.BucketDuration,
		m.Runs,
		m.LastRunSuccess,
		m.SyncRunning,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
