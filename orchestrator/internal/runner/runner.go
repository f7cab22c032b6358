package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/observability"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
)

// Action is the work behind a stage.
type Action interface {
	Run(ctx context.Context) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context) error

func (f ActionFunc) Run(ctx context.Context) error { return f(ctx) }

// Stage is what the runner needs to know about a stage.
type Stage struct {
	Name   string
	Action Action
}

var errNoAction = errors.New("stage has no action")

// PanicError is the fault recorded when an action panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Runner executes stages and records their outcomes.
type Runner struct {
	recorder *telemetry.Recorder
	obs      *observability.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithObservability traces each execution and notification failure.
func WithObservability(p *observability.Provider) Option {
	return func(r *Runner) { r.obs = p }
}

// WithClock overrides the wall clock used for start and end times.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New returns a Runner recording to rec.
func New(rec *telemetry.Recorder, opts ...Option) *Runner {
	r := &Runner{
		recorder: rec,
		logger:   slog.Default().With("component", "runner"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Execute runs the stage once and returns its outcome. It never panics and
// never returns the action's error; the outcome carries it instead.
func (r *Runner) Execute(ctx context.Context, st Stage) telemetry.TaskOutcome {
	ctx, done := r.obs.TrackOperation(ctx, "stage.execute", attribute.String("stage", st.Name))

	start := r.now()
	err := r.invoke(ctx, st.Action)
	end := r.now()
	done(err)

	o := telemetry.NewOutcome(st.Name, start, end, err)
	r.recorder.Record(ctx, o)

	if o.Failed() {
		r.logger.Error("stage failed",
			"stage", st.Name,
			"duration_seconds", o.DurationSeconds,
			"err", o.Error,
		)
	} else {
		r.logger.Info("stage completed",
			"stage", st.Name,
			"duration_seconds", o.DurationSeconds,
		)
	}
	return o
}

func (r *Runner) invoke(ctx context.Context, a Action) (err error) {
	if a == nil {
		return errNoAction
	}
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	return a.Run(ctx)
}

// NotifyFailure records a failed alert delivery as a failure outcome of
// stage, tagged with the alert's subject.
func (r *Runner) NotifyFailure(ctx context.Context, stage, subject, reason string, start, end time.Time) telemetry.TaskOutcome {
	if reason == "" {
		reason = "notification failed"
	}
	o := telemetry.NewOutcome(stage, start, end, errors.New(reason))
	o.Alert = subject
	r.recorder.Record(ctx, o)

	r.logger.Error("alert delivery failed",
		"stage", stage,
		"alert", subject,
		"err", reason,
	)
	return o
}
