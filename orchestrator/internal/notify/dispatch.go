package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/alerts"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/observability"
)

// Observer is told about every delivery result.
type Observer interface {
	ObserveNotification(a alerts.Alert, r Result)
}

// Dispatcher delivers a batch of alerts concurrently.
type Dispatcher struct {
	notifier    Notifier
	concurrency int
	limiter     *rate.Limiter
	timeout     time.Duration
	obs         *observability.Provider
	observers   []Observer
	logger      *slog.Logger
}

// DispatchOption configures a Dispatcher.
type DispatchOption func(*Dispatcher)

// WithConcurrency bounds simultaneous deliveries.
func WithConcurrency(n int) DispatchOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithRate paces deliveries to perSecond; 0 disables pacing.
func WithRate(perSecond float64) DispatchOption {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			d.limiter = nil
		}
	}
}

// WithTimeout bounds a single delivery.
func WithTimeout(t time.Duration) DispatchOption {
	return func(d *Dispatcher) { d.timeout = t }
}

// WithObservability traces every delivery.
func WithObservability(p *observability.Provider) DispatchOption {
	return func(d *Dispatcher) { d.obs = p }
}

// WithObserver registers o for delivery results.
func WithObserver(o Observer) DispatchOption {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

// NewDispatcher returns a Dispatcher for n.
func NewDispatcher(n Notifier, opts ...DispatchOption) *Dispatcher {
	d := &Dispatcher{
		notifier:    n,
		concurrency: config.DefaultConcurrency,
		timeout:     config.DefaultNotifyTimeout,
		logger:      slog.Default().With("component", "notify"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// NewDispatcherFromConfig applies the notifier section of the config.
func NewDispatcherFromConfig(n Notifier, cfg config.NotifierConfig, opts ...DispatchOption) *Dispatcher {
	base := []DispatchOption{
		WithConcurrency(cfg.Concurrency),
		WithRate(cfg.RatePerSecond),
	}
	if cfg.Timeout > 0 {
		base = append(base, WithTimeout(cfg.Timeout))
	}
	return NewDispatcher(n, append(base, opts...)...)
}

// Dispatch notifies every alert and returns once all have a result.
// results[i] belongs to batch[i].
func (d *Dispatcher) Dispatch(ctx context.Context, batch []alerts.Alert) []Result {
	results := make([]Result, len(batch))
	if len(batch) == 0 {
		return results
	}

	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = d.deliver(ctx, batch[i])
		}(i)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, a alerts.Alert) (res Result) {
	ctx, done := d.obs.TrackOperation(ctx, "alert.notify",
		attribute.String("rule", a.Rule),
		attribute.String("severity", a.Severity),
	)
	defer func() {
		if p := recover(); p != nil {
			res = Failed(fmt.Sprintf("notifier panic: %v", p))
		}
		var err error
		if !res.OK() {
			err = fmt.Errorf("%s", res.Reason)
		}
		done(err)
		for _, o := range d.observers {
			o.ObserveNotification(a, res)
		}
	}()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return Failed(fmt.Sprintf("rate limit: %v", err))
		}
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	res = d.notifier.Notify(ctx, a)
	if res.Status == "" {
		res = Failed("notifier returned no status")
	}
	return res
}
