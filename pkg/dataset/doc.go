// Package dataset defines the tabular values passed between pipeline stages.
// A Dataset is an ordered slice of rows; each Row maps a field name to a
// scalar (float64, int64, string, time.Time, or nil for a missing value).
// The orchestrator never interprets rows itself; it only hands the output of
// the alerting stage to the alert evaluator.
package dataset
