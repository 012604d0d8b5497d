// Package observability holds domain metrics and OpenTelemetry tracing setup.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TreesCreated counts plants recorded, labelled by whether an image came with them.
	TreesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canopy_trees_created_total",
		Help: "Total number of trees created",
	}, []string{"with_image"})

	// TreesDeleted counts removed plants.
	TreesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canopy_trees_deleted_total",
		Help: "Total number of trees deleted",
	})

	// ImageUploadFailures counts uploads that failed without failing the request.
	ImageUploadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canopy_image_upload_failures_total",
		Help: "Total number of image uploads that failed",
	}, []string{"provider"})

	// ImageUploadLatency records how long a blob upload took.
	ImageUploadLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "canopy_image_upload_latency_seconds",
		Help:    "Blob upload latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	// MapsCreated counts maps, including the ensured Public map.
	MapsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canopy_maps_created_total",
		Help: "Total number of maps created",
	})

	// TrackerPolls counts tracking polls by outcome.
	TrackerPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canopy_tracker_polls_total",
		Help: "Total number of tracking poll iterations",
	}, []string{"outcome"})

	// PlanterEvents counts tree change events delivered to tracking feeds.
	PlanterEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canopy_planter_events_total",
		Help: "Total number of planter change events fanned out to tracking feeds",
	}, []string{"action"})

	// TrackingConnections is the gauge of open tracking feed sockets.
	TrackingConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canopy_tracking_connections",
		Help: "Number of open tracking feed WebSocket connections",
	})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "canopy_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// ObserveUpload records a blob upload result.
func ObserveUpload(provider string, start time.Time, err error) {
	ImageUploadLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		ImageUploadFailures.WithLabelValues(provider).Inc()
	}
}
