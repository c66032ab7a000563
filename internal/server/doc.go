// Package server exposes the HTTP surface: the EventSub callback endpoint,
// health probes, and Prometheus metrics.
package server
