// Package telemetry keeps the append-only history of stage executions.
//
// Every execution attempt produces one TaskOutcome. The Recorder appends it
// to each configured Sink under a single lock, so entries are never
// interleaved and appear in the order their executions completed. A sink
// failure is logged and swallowed: losing an audit line must never stop the
// pipeline.
//
// Sinks:
//   - FileSink: JSON Lines file opened O_APPEND; one outcome per line
//   - SQLiteSink: task_outcomes table (modernc.org/sqlite)
//   - Ring: bounded in-memory history for the status API
package telemetry
