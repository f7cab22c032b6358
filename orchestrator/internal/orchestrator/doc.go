// Package orchestrator owns the stage registry and the scheduling loop.
//
// Each tick evaluates the window since the previous tick, runs every due
// stage sequentially in declaration order and, after the alerting stage
// succeeds, evaluates its output and waits for every notification before
// the tick ends.
package orchestrator
