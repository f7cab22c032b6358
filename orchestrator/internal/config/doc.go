// Package config loads and watches the orchestrator configuration file.
//
// Top-level sections:
//   - stages: ordered {name, action, at|every} schedule list
//   - thresholds: ordered {field, comparator, limit, subject, template} rules
//   - alerts: which stage's output is evaluated, optional suppression
//   - telemetry: append-only outcome sink (file | sqlite) and its path
//   - notifier: transport (log | smtp | webhook), endpoint, recipients, pacing
//   - sources, transform, warehouse, dashboard, handoff: stage collaborators
//   - server, observability: optional status API and OpenTelemetry export
//
// Load(path) reads the YAML file, applies defaults, then validates. Every
// validation failure wraps ErrInvalid so callers can tell startup-fatal
// configuration errors apart from I/O errors.
//
// Secrets are never stored in the file: fields ending in _env name the
// environment variable that holds the value, resolved by accessor methods.
//
// Watch(ctx, path, onChange) uses fsnotify to detect edits and calls onChange
// with the newly parsed Config. The running schedule is immutable, so callers
// typically only log that a restart is needed.
package config
