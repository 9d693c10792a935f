// Package workers sizes worker pools relative to available CPUs, with an
// environment override for constrained deployments.
package workers
