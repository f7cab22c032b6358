// Package metrics exposes pipeline counters in the Prometheus text format.
//
// Collector is fed by two paths: it is a telemetry sink for stage outcomes
// and a notify observer for alert deliveries. WriteText renders the current
// values; the Collector itself is an http.Handler for /metrics.
package metrics
