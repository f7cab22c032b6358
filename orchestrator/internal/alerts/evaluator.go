package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

// Evaluator runs Evaluate with the configured rules, passes each alert
// through an optional Suppressor and keeps a bounded history.
//
// Evaluator is safe for concurrent use.
type Evaluator struct {
	rules      []Rule
	suppressor Suppressor
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	history []Alert
	limit   int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithSuppressor drops alerts the suppressor has seen within its cooldown.
func WithSuppressor(s Suppressor) Option {
	return func(e *Evaluator) { e.suppressor = s }
}

// WithHistory bounds the number of alerts kept for Recent.
func WithHistory(n int) Option {
	return func(e *Evaluator) { e.limit = n }
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator returns an Evaluator over rules. With no suppressor every
// violation is reported on every call.
func NewEvaluator(rules []Rule, opts ...Option) *Evaluator {
	e := &Evaluator{
		rules:  rules,
		now:    time.Now,
		logger: slog.Default().With("component", "alerts"),
		limit:  200,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Rules returns the rules in evaluation order.
func (e *Evaluator) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate returns the alerts to send for ds, in rule then row order.
func (e *Evaluator) Evaluate(ctx context.Context, ds dataset.Dataset) []Alert {
	all := evaluate(ds, e.rules, e.now())
	out := all[:0]
	for _, a := range all {
		if e.suppressed(ctx, a) {
			continue
		}
		out = append(out, a)
	}

	for _, a := range out {
		e.logger.Warn("alert fired",
			"rule", a.Rule,
			"key", a.Key,
			"value", a.Value,
			"severity", a.Severity,
		)
	}

	e.mu.Lock()
	e.history = append(e.history, out...)
	if len(e.history) > e.limit {
		e.history = e.history[len(e.history)-e.limit:]
	}
	e.mu.Unlock()
	return out
}

func (e *Evaluator) suppressed(ctx context.Context, a Alert) bool {
	if e.suppressor == nil {
		return false
	}
	allow, err := e.suppressor.Allow(ctx, a.Rule+":"+a.Key)
	if err != nil {
		e.logger.Warn("suppressor unavailable, sending alert", "rule", a.Rule, "key", a.Key, "err", err)
		return false
	}
	if !allow {
		e.logger.Debug("alert suppressed", "rule", a.Rule, "key", a.Key)
	}
	return !allow
}

// SetDelivery records the notifier's verdict on the alert with id.
func (e *Evaluator) SetDelivery(id string, delivered bool, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].ID != id {
			continue
		}
		if delivered {
			e.history[i].Delivery = "delivered"
		} else {
			e.history[i].Delivery = "failed"
			e.history[i].Reason = reason
		}
		return
	}
}

// Recent returns up to limit alerts, newest first. limit <= 0 returns all.
func (e *Evaluator) Recent(limit int) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Alert, 0, n)
	for i := len(e.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, e.history[i])
	}
	return out
}
