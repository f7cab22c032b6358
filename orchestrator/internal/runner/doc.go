// Package runner executes one stage action and turns the attempt into a
// telemetry.TaskOutcome. Faults never escape Execute: errors and panics
// alike become failure outcomes, and every outcome is recorded before
// Execute returns.
package runner
