// Package metrics defines the Prometheus collectors exported by the
// service: HTTP request counters, conversion pipeline histograms, media
// fetch totals, and conversion cache gauges.
package metrics
