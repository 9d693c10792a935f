// Package middleware provides the HTTP middleware chain: request access
// logging and Prometheus instrumentation.
package middleware
