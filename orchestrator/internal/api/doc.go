// Package api implements the read-only HTTP status API of the orchestrator.
//
// New(deps) returns an http.Handler that serves:
//
//	GET /api/v1/health     overall state and per-stage health
//	GET /api/v1/stages     schedule, next run and live stage outputs
//	GET /api/v1/outcomes   the most recent task outcomes, oldest first (?limit=)
//	GET /api/v1/alerts     recent alerts with delivery status (?limit=)
//	GET /metrics           Prometheus text exposition
//
// The JSON endpoints return 405 for non-GET methods. APIKey wraps the handler when server.auth.mode is apikey.
package api
