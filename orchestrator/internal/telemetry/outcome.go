package telemetry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the result of one execution attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// TaskOutcome records one execution attempt. It is created once and never
// modified afterwards.
type TaskOutcome struct {
	ID              string    `json:"id"`
	Stage           string    `json:"stage"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          Status    `json:"status"`
	Error           string    `json:"error,omitempty"`

	// Alert carries the subject of the alert whose delivery failed, for
	// outcomes produced by notification rather than by the stage action.
	Alert string `json:"alert,omitempty"`
}

// NewOutcome builds an outcome from its timing. A nil err is a success.
func NewOutcome(stage string, start, end time.Time, err error) TaskOutcome {
	o := TaskOutcome{
		ID:              uuid.NewString(),
		Stage:           stage,
		Start:           start,
		End:             end,
		DurationSeconds: end.Sub(start).Seconds(),
		Status:          StatusSuccess,
	}
	if err != nil {
		o.Status = StatusFailure
		o.Error = err.Error()
		if o.Error == "" {
			o.Error = fmt.Sprintf("%T", err)
		}
	}
	return o
}

// Failed reports whether the attempt failed.
func (o TaskOutcome) Failed() bool {
	return o.Status == StatusFailure
}
