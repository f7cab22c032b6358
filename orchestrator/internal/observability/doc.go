// Package observability exports traces and RED metrics (rate, errors,
// duration) for stage executions and notification deliveries over OTLP gRPC.
//
// A disabled provider still hands out tracers and meters backed by the
// global no-op implementations, so callers never branch on configuration.
package observability
