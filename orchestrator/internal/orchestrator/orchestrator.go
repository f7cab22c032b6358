package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/alerts"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/notify"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/runner"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/schedule"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

// maxWait caps one sleep of the loop so wall-clock jumps are noticed.
const maxWait = time.Minute

// StageDefinition is a registered unit of work. It is not modified after
// registration.
type StageDefinition struct {
	Name     string
	Schedule schedule.Schedule
	Action   runner.Action
}

// DuplicateStageError is returned by Register for a reused name. It is a
// configuration error.
type DuplicateStageError struct {
	Name string
}

func (e *DuplicateStageError) Error() string {
	return fmt.Sprintf("duplicate stage %q", e.Name)
}

func (e *DuplicateStageError) Unwrap() error { return config.ErrInvalid }

// Source returns the dataset the alerting stage produced, if any.
type Source func() (dataset.Dataset, bool)

type alerting struct {
	stage      string
	source     Source
	evaluator  *alerts.Evaluator
	dispatcher *notify.Dispatcher
}

// Orchestrator schedules and runs stages. Tick and Run must not be called
// concurrently with each other; the accessors are safe at any time.
type Orchestrator struct {
	runner *runner.Runner
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	stages   []StageDefinition
	last     time.Time
	alerting *alerting
}

// New returns an empty Orchestrator executing through r.
func New(r *runner.Runner) *Orchestrator {
	return &Orchestrator{
		runner: r,
		logger: slog.Default().With("component", "orchestrator"),
		now:    time.Now,
	}
}

// Register appends def to the registry. A reused name leaves the registry
// unchanged and returns *DuplicateStageError.
func (o *Orchestrator) Register(def StageDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("orchestrator: %w: stage name is required", config.ErrInvalid)
	}
	if def.Schedule == nil {
		return fmt.Errorf("orchestrator: %w: stage %q has no schedule", config.ErrInvalid, def.Name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.stages {
		if s.Name == def.Name {
			return &DuplicateStageError{Name: def.Name}
		}
	}
	o.stages = append(o.stages, def)
	return nil
}

// Stages returns the registry in declaration order.
func (o *Orchestrator) Stages() []StageDefinition {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]StageDefinition(nil), o.stages...)
}

// WithAlerting evaluates source's dataset with ev after stage succeeds and
// sends the resulting alerts through d.
func (o *Orchestrator) WithAlerting(stage string, source Source, ev *alerts.Evaluator, d *notify.Dispatcher) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.alerting = &alerting{stage: stage, source: source, evaluator: ev, dispatcher: d}
}

// Tick runs every stage with an occurrence in (previous tick, now], in
// declaration order, and returns their outcomes. The first tick only
// considers now itself.
//
// Stage actions and notifications run detached from ctx cancellation, so a
// shutdown never aborts work already started.
func (o *Orchestrator) Tick(ctx context.Context, now time.Time) []telemetry.TaskOutcome {
	o.mu.Lock()
	prev := o.last
	if prev.IsZero() {
		prev = now.Add(-time.Nanosecond)
	}
	if now.After(o.last) {
		o.last = now
	}
	stages := append([]StageDefinition(nil), o.stages...)
	al := o.alerting
	o.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	var out []telemetry.TaskOutcome
	for _, def := range stages {
		if !def.Schedule.Due(prev, now) {
			continue
		}
		outcome := o.runner.Execute(ctx, runner.Stage{Name: def.Name, Action: def.Action})
		out = append(out, outcome)

		if al != nil && def.Name == al.stage && !outcome.Failed() {
			o.alert(ctx, al)
		}
	}
	return out
}

func (o *Orchestrator) alert(ctx context.Context, al *alerting) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("alerting panicked", "stage", al.stage, "panic", p)
		}
	}()

	ds, ok := al.source()
	if !ok {
		o.logger.Warn("alerting stage produced no dataset", "stage", al.stage)
		return
	}
	batch := al.evaluator.Evaluate(ctx, ds)
	if len(batch) == 0 {
		return
	}

	start := o.now()
	results := al.dispatcher.Dispatch(ctx, batch)
	end := o.now()

	delivered := 0
	for i, res := range results {
		al.evaluator.SetDelivery(batch[i].ID, res.OK(), res.Reason)
		if res.OK() {
			delivered++
			continue
		}
		o.runner.NotifyFailure(ctx, al.stage, batch[i].Subject, res.Reason, start, end)
	}
	o.logger.Info("alerts dispatched",
		"stage", al.stage,
		"alerts", len(batch),
		"delivered", delivered,
		"failed", len(batch)-delivered,
	)
}

// Run ticks until ctx is cancelled, sleeping on clock until the next
// occurrence. Cancellation is observed between ticks, so the tick in
// progress completes first. Run returns nil on shutdown.
func (o *Orchestrator) Run(ctx context.Context, clock schedule.Clock) error {
	o.logger.Info("orchestrator started", "stages", len(o.Stages()))
	for ctx.Err() == nil {
		o.Tick(ctx, clock.Now())
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-clock.After(o.untilNext(clock.Now())):
		}
	}
	o.logger.Info("orchestrator stopped")
	return nil
}

func (o *Orchestrator) untilNext(now time.Time) time.Duration {
	wait := maxWait
	for _, nr := range o.NextRuns(now) {
		if d := nr.At.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// NextRun is the upcoming occurrence of one stage.
type NextRun struct {
	Stage    string    `json:"stage"`
	Schedule string    `json:"schedule"`
	At       time.Time `json:"next_run"`
}

// NextRuns lists each stage's first occurrence after now, in declaration
// order.
func (o *Orchestrator) NextRuns(now time.Time) []NextRun {
	stages := o.Stages()
	out := make([]NextRun, 0, len(stages))
	for _, s := range stages {
		out = append(out, NextRun{Stage: s.Name, Schedule: s.Schedule.String(), At: s.Schedule.Next(now)})
	}
	return out
}

// Definitions builds the stage list described by cfg, resolving each
// stage's action by name.
func Definitions(cfg *config.Config, actions map[string]runner.Action) ([]StageDefinition, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w: timezone: %v", config.ErrInvalid, err)
	}
	defs := make([]StageDefinition, 0, len(cfg.Stages))
	for _, st := range cfg.Stages {
		sched, err := schedule.Parse(st.At, st.Every, loc)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w: stage %q: %v", config.ErrInvalid, st.Name, err)
		}
		action, ok := actions[st.ActionName()]
		if !ok {
			return nil, fmt.Errorf("orchestrator: %w: stage %q: no action %q", config.ErrInvalid, st.Name, st.ActionName())
		}
		defs = append(defs, StageDefinition{Name: st.Name, Schedule: sched, Action: action})
	}
	return defs, nil
}

// RegisterAll registers defs in order, stopping at the first error.
func (o *Orchestrator) RegisterAll(defs []StageDefinition) error {
	for _, d := range defs {
		if err := o.Register(d); err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
	}
	return nil
}
