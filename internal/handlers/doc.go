// Package handlers provides HTTP request handlers for the conversion API.
//
// It includes handlers for:
//   - Submitting a post URL for GIF conversion
//   - Serving cached conversions
//   - Health, liveness, and readiness checks
//   - Version and build information
package handlers
