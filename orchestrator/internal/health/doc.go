// Package health derives a per-stage health state from recent task outcomes.
//
// The Engine is a telemetry sink: it keeps the last Window outcomes of every
// stage and scores them. The score weighs the success rate over the window,
// whether the latest run succeeded and how reliably alert notifications
// raised by the stage were delivered. Diagnose turns a stage's numbers
// into short explanations, most severe first.
package health
