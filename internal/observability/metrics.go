package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssetsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pm",
		Name:      "assets_processed_total",
		Help:      "Total number of assets that reached a terminal status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pm",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pm",
		Name:      "stage_failures_total",
		Help:      "Stages that produced no result, by reason",
	}, []string{"stage", "reason"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pm",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference steps",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"model"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pm",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	})

	PersonsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pm",
		Name:      "persons_created_total",
		Help:      "Total number of person clusters created",
	})

	FacesAssigned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pm",
		Name:      "faces_assigned_total",
		Help:      "Faces assigned to an existing person",
	})

	ClusteringConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pm",
		Name:      "clustering_conflicts_total",
		Help:      "Optimistic person registry conflicts",
	}, []string{"outcome"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pm",
		Name:      "queue_depth",
		Help:      "Number of pending asset tasks in queue",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pm",
		Name:      "active_workers",
		Help:      "Number of assets currently being processed",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pm",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pm",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
