package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
)

var t0 = time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)

func outcome(stage string, err error) telemetry.TaskOutcome {
	return telemetry.NewOutcome(stage, t0, t0.Add(time.Second), err)
}

func TestEngine_SlidingWindow(t *testing.T) {
	e := NewEngine()
	ctx := context.Background()

	for i := 0; i < Window; i++ {
		_ = e.Append(ctx, outcome("extract", errors.New("boom")))
	}
	for i := 0; i < Window; i++ {
		_ = e.Append(ctx, outcome("extract", nil))
	}

	r := e.Report()
	if len(r.Stages) != 1 {
		t.Fatalf("stages: got %d, want 1", len(r.Stages))
	}
	h := r.Stages[0]
	if h.Runs != Window {
		t.Errorf("runs: got %d, want %d", h.Runs, Window)
	}
	if h.SuccessPct != 100 {
		t.Errorf("old failures should have left the window: success %.1f", h.SuccessPct)
	}
	if h.State != StateHealthy || r.State != StateHealthy {
		t.Errorf("state: stage %q, overall %q", h.State, r.State)
	}
	if h.LastRun == nil || !h.LastRun.Equal(t0.Add(time.Second)) {
		t.Errorf("last run: got %v", h.LastRun)
	}
}

func TestEngine_LastFailure(t *testing.T) {
	e := NewEngine()
	ctx := context.Background()
	_ = e.Append(ctx, outcome("load", nil))
	_ = e.Append(ctx, outcome("load", errors.New("warehouse unreachable")))

	h := e.Report().Stages[0]
	if h.LastStatus != telemetry.StatusFailure {
		t.Errorf("last status: got %q", h.LastStatus)
	}
	if h.LastError != "warehouse unreachable" {
		t.Errorf("last error: got %q", h.LastError)
	}
	if h.SuccessPct != 50 {
		t.Errorf("success pct: got %.1f", h.SuccessPct)
	}
	if h.State != StateFailing {
		t.Errorf("state: got %q (score %.1f)", h.State, h.Score)
	}
}

func TestEngine_NotificationOutcomes(t *testing.T) {
	e := NewEngine()
	ctx := context.Background()
	_ = e.Append(ctx, outcome("kpi", nil))

	failed := outcome("kpi", errors.New("smtp: connection refused"))
	failed.Alert = "Low Inventory Alert"
	_ = e.Append(ctx, failed)

	h := e.Report().Stages[0]
	if h.Runs != 1 {
		t.Errorf("notification outcomes are not runs: got %d", h.Runs)
	}
	if h.LastStatus != telemetry.StatusSuccess {
		t.Errorf("last status: got %q", h.LastStatus)
	}
	if h.DeliveryPct != 0 {
		t.Errorf("delivery pct: got %.1f", h.DeliveryPct)
	}
	if h.State != StateHealthy {
		t.Errorf("state: got %q (score %.1f)", h.State, h.Score)
	}
}

func TestEngine_ObserveBeforeFirstRun(t *testing.T) {
	e := NewEngine()
	e.Observe("extract", "transform")
	_ = e.Append(context.Background(), outcome("transform", nil))

	r := e.Report()
	if len(r.Stages) != 2 {
		t.Fatalf("stages: got %d, want 2", len(r.Stages))
	}
	if r.Stages[0].Stage != "extract" || r.Stages[0].State != StateUnknown {
		t.Errorf("extract: got %+v", r.Stages[0])
	}
	if r.Stages[0].LastRun != nil {
		t.Error("extract has no last run")
	}
	if r.State != StateHealthy {
		t.Errorf("overall ignores unknown stages: got %q", r.State)
	}
}

func TestEngine_Empty(t *testing.T) {
	if got := NewEngine().Report().State; got != StateUnknown {
		t.Errorf("empty engine: got %q", got)
	}
}
