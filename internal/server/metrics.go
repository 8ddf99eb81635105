package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qto_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qto_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Extraction metrics
	extractionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qto_extraction_requests_total",
			Help: "Total number of extraction requests",
		},
		[]string{"language", "status"}, // status: ok, partial, rejected, failed
	)

	extractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qto_extraction_duration_seconds",
			Help:    "End-to-end extraction duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"language"},
	)

	chunksFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qto_chunks_failed_total",
			Help: "Total number of chunks that failed recognition or mapping",
		},
		[]string{"kind"},
	)

	droppedItemsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qto_dropped_items_total",
			Help: "Total quantity items dropped during mapping validation",
		},
	)

	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qto_rate_limit_hits_total",
			Help: "Total number of uploads rejected by rate limiting",
		},
		[]string{"reason"}, // reason: rate, daily_quota
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qto_upload_size_bytes",
			Help:    "Size of uploaded documents in bytes",
			Buckets: []float64{10 * 1024, 100 * 1024, 1024 * 1024, 5 * 1024 * 1024, 10 * 1024 * 1024, 20 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qto_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)
)
