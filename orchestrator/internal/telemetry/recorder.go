package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink is an append-only destination for outcomes.
type Sink interface {
	Append(ctx context.Context, o TaskOutcome) error
}

// Recorder fans each outcome out to its sinks.
//
// Record holds one exclusive lock for the whole append, across all sinks, so
// concurrent callers never interleave and every sink sees the same order.
// Record never returns an error and never panics.
type Recorder struct {
	mu    sync.Mutex
	sinks []Sink
	count int
}

// NewRecorder returns a Recorder writing to sinks in the given order.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// Record appends o to every sink. Duplicate calls append duplicate entries.
func (r *Recorder) Record(ctx context.Context, o TaskOutcome) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.count++
	for _, s := range r.sinks {
		if err := safeAppend(ctx, s, o); err != nil {
			// Process output is the fallback channel when a sink is down.
			slog.Error("telemetry: append failed",
				"sink", fmt.Sprintf("%T", s),
				"stage", o.Stage,
				"status", o.Status,
				"outcome_error", o.Error,
				"err", err,
			)
		}
	}
}

// Count returns the number of Record calls so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close closes every sink that holds resources.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func safeAppend(ctx context.Context, s Sink, o TaskOutcome) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sink panic: %v", p)
		}
	}()
	return s.Append(ctx, o)
}
