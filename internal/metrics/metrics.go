package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidgif_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidgif_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidgif_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Conversion pipeline metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidgif_conversions_total",
			Help: "Total number of conversion requests by outcome",
		},
		[]string{"status"}, // "success", "cached", "error", "cancelled"
	)

	ConversionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vidgif_conversion_duration_seconds",
			Help:    "End-to-end conversion duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)

	ConversionFrames = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vidgif_conversion_frames",
			Help:    "Number of frames per conversion",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 400},
		},
	)

	ConversionOutputBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vidgif_conversion_output_bytes",
			Help:    "Size of produced GIF buffers in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)

	ConversionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidgif_conversions_in_flight",
			Help: "Number of conversions currently running",
		},
	)
)

// Fetch metrics
var (
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vidgif_fetch_duration_seconds",
			Help:    "Media retrieval duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FetchBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidgif_fetch_bytes_total",
			Help: "Total media bytes fetched from providers",
		},
	)
)

// Cache metrics
var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidgif_cache_hits_total",
			Help: "Conversion cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidgif_cache_misses_total",
			Help: "Conversion cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidgif_cache_entries",
			Help: "Number of cached conversions",
		},
	)
)
