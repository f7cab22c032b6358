package telemetry

import (
	"context"
	"sync"
)

// Ring keeps the most recent outcomes in memory, oldest evicted first.
// It is safe for concurrent use.
type Ring struct {
	mu   sync.RWMutex
	buf  []TaskOutcome
	size int
}

// NewRing returns a Ring holding at most size outcomes.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{size: size}
}

func (r *Ring) Append(_ context.Context, o TaskOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) >= r.size {
		r.buf = r.buf[1:]
	}
	r.buf = append(r.buf, o)
	return nil
}

// Recent returns up to limit outcomes, oldest first. limit <= 0 returns all.
func (r *Ring) Recent(limit int) []TaskOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.buf, limit)
}

// ForStage returns up to limit outcomes of one stage, oldest first.
func (r *Ring) ForStage(stage string, limit int) []TaskOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []TaskOutcome
	for _, o := range r.buf {
		if o.Stage == stage {
			out = append(out, o)
		}
	}
	return tail(out, limit)
}

func tail(in []TaskOutcome, limit int) []TaskOutcome {
	if limit > 0 && len(in) > limit {
		in = in[len(in)-limit:]
	}
	out := make([]TaskOutcome, len(in))
	copy(out, in)
	return out
}
