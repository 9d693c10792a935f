package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, status := range []string{"success", "cached", "error", "cancelled"} {
		ConversionsTotal.WithLabelValues(status)
	}
}
