package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
)

// Window is the number of recent outcomes kept per stage.
const Window = 20

// StageHealth is the health snapshot for one stage.
type StageHealth struct {
	Stage       string           `json:"stage"`
	State       string           `json:"state"`
	Score       float64          `json:"score"`
	Runs        int              `json:"runs"`
	SuccessPct  float64          `json:"success_pct"`
	DeliveryPct float64          `json:"delivery_pct"`
	LastStatus  telemetry.Status `json:"last_status,omitempty"`
	LastRun     *time.Time       `json:"last_run,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	Hints       []Hint           `json:"hints"`
}

// Report is the health of every observed stage plus the combined state.
type Report struct {
	State  string        `json:"state"`
	Stages []StageHealth `json:"stages"`
}

// Engine keeps a sliding window of outcomes per stage.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	stages map[string]*stageState
}

type stageState struct {
	runs       []bool // newest last
	deliveries []bool
	last       telemetry.TaskOutcome
	hasLast    bool
}

// NewEngine returns an empty Engine.
func NewEngine() *Engine {
	return &Engine{stages: make(map[string]*stageState)}
}

// Append implements telemetry.Sink. Outcomes carrying an alert subject are
// notification results and count toward delivery, not toward runs.
func (e *Engine) Append(_ context.Context, o telemetry.TaskOutcome) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.stages[o.Stage]
	if !ok {
		st = &stageState{}
		e.stages[o.Stage] = st
	}
	if o.Alert != "" {
		st.deliveries = push(st.deliveries, !o.Failed())
		return nil
	}
	st.runs = push(st.runs, !o.Failed())
	st.last = o
	st.hasLast = true
	return nil
}

// Observe registers stages so they are reported as unknown before their
// first run.
func (e *Engine) Observe(stages ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range stages {
		if _, ok := e.stages[s]; !ok {
			e.stages[s] = &stageState{}
		}
	}
}

// Report scores every stage, sorted by name.
func (e *Engine) Report() Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := Report{Stages: make([]StageHealth, 0, len(e.stages))}
	states := make([]string, 0, len(e.stages))
	for name, st := range e.stages {
		h := StageHealth{
			Stage:       name,
			Runs:        len(st.runs),
			SuccessPct:  pct(st.runs, 0),
			DeliveryPct: pct(st.deliveries, 100),
		}
		if st.hasLast {
			h.LastStatus = st.last.Status
			end := st.last.End
			h.LastRun = &end
			h.LastError = st.last.Error
		}
		score := Compute(Input{
			Runs:        h.Runs,
			SuccessPct:  h.SuccessPct,
			LastOK:      st.hasLast && !st.last.Failed(),
			DeliveryPct: h.DeliveryPct,
		})
		h.Score = score.Score
		h.State = score.State
		h.Hints = Diagnose(h)
		out.Stages = append(out.Stages, h)
		states = append(states, h.State)
	}
	sort.Slice(out.Stages, func(i, j int) bool { return out.Stages[i].Stage < out.Stages[j].Stage })
	out.State = Worst(states...)
	return out
}

func push(history []bool, ok bool) []bool {
	if len(history) >= Window {
		history = history[1:]
	}
	return append(history, ok)
}

// pct returns the share of true values, or empty when there are none.
func pct(history []bool, empty float64) float64 {
	if len(history) == 0 {
		return empty
	}
	var ok int
	for _, v := range history {
		if v {
			ok++
		}
	}
	return float64(ok) / float64(len(history)) * 100
}
