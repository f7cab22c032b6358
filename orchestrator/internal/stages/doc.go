// Package stages implements the five built-in pipeline actions: extract,
// transform, load, kpi and dashboard.
//
// Stages exchange data through a Handoff keyed by action name. An action
// clears its own entry before it starts, so a failure upstream leaves the
// next action with nothing to consume instead of yesterday's data.
package stages
