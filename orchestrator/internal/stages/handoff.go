package stages

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

// Entry is a stage output together with the time it was produced.
type Entry struct {
	Data      dataset.Dataset
	UpdatedAt time.Time
}

// Handoff is a thread-safe in-memory store of stage outputs. Entries older
// than the TTL are invisible to Get and removed by Run.
type Handoff struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time
}

// NewHandoff creates a Handoff with the given TTL.
func NewHandoff(ttl time.Duration) *Handoff {
	return &Handoff{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put stores ds as the latest output for key. Callers must not modify ds
// afterwards.
func (h *Handoff) Put(key string, ds dataset.Dataset) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data[key] = &Entry{Data: ds, UpdatedAt: h.now()}
}

// Get returns a copy of the output for key if it is within the TTL.
func (h *Handoff) Get(key string) (dataset.Dataset, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.data[key]
	if !ok || !e.UpdatedAt.After(h.now().Add(-h.ttl)) {
		return nil, false
	}
	return e.Data.Clone(), true
}

// Delete forgets key.
func (h *Handoff) Delete(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.data, key)
}

// Output summarizes one live entry.
type Output struct {
	Stage     string    `json:"stage"`
	Rows      int       `json:"rows"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outputs lists the live entries sorted by key.
func (h *Handoff) Outputs() []Output {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cutoff := h.now().Add(-h.ttl)
	out := make([]Output, 0, len(h.data))
	for k, e := range h.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, Output{Stage: k, Rows: len(e.Data), UpdatedAt: e.UpdatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Evict removes entries older than now minus TTL and returns how many.
func (h *Handoff) Evict(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	cutoff := now.Add(-h.ttl)
	removed := 0
	for k, e := range h.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(h.data, k)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries at half the TTL (minimum one second) until ctx
// is cancelled.
func (h *Handoff) Run(ctx context.Context) {
	interval := h.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := h.Evict(now); n > 0 {
				slog.Debug("stages: evicted stale outputs", "count", n)
			}
		}
	}
}
