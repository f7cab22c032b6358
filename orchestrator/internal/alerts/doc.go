// Package alerts evaluates threshold rules against a stage's output dataset
// and produces one Alert per violating row per rule.
package alerts
