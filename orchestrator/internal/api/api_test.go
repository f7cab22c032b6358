package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/alerts"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/api"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/health"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/orchestrator"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
)

// --- test helpers -----------------------------------------------------------

var t0 = time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)

type fakeAlerts []alerts.Alert

func (f fakeAlerts) Recent(limit int) []alerts.Alert {
	if limit > 0 && limit < len(f) {
		return f[:limit]
	}
	return f
}

type fakeSchedule []orchestrator.NextRun

func (f fakeSchedule) NextRuns(time.Time) []orchestrator.NextRun { return f }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func ringWith(outcomes ...telemetry.TaskOutcome) *telemetry.Ring {
	r := telemetry.NewRing(100)
	for _, o := range outcomes {
		_ = r.Append(context.Background(), o)
	}
	return r
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_NoDeps(t *testing.T) {
	h := api.New(api.Deps{Now: func() time.Time { return t0 }})
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "unknown" {
		t.Errorf("state: got %q, want unknown", resp.State)
	}
	if resp.GeneratedAt != "2024-06-01T02:00:00Z" {
		t.Errorf("generated_at: got %q", resp.GeneratedAt)
	}
}

func TestHealth_StageStates(t *testing.T) {
	eng := health.NewEngine()
	ctx := context.Background()
	_ = eng.Append(ctx, telemetry.NewOutcome("extract", t0, t0.Add(time.Second), nil))
	_ = eng.Append(ctx, telemetry.NewOutcome("load", t0, t0.Add(time.Second), errors.New("warehouse unreachable")))

	h := api.New(api.Deps{
		Health: eng,
		Alerts: fakeAlerts{{Rule: "low_inventory"}, {Rule: "low_inventory"}},
	})
	rr := get(t, h, "/api/v1/health")

	var resp map[string]any
	decode(t, rr, &resp)
	if resp["state"] != "failing" {
		t.Errorf("state: got %v, want failing", resp["state"])
	}
	if resp["stage_count"].(float64) != 2 {
		t.Errorf("stage_count: got %v", resp["stage_count"])
	}
	if resp["alert_count"].(float64) != 2 {
		t.Errorf("alert_count: got %v", resp["alert_count"])
	}
	stages := resp["stages"].([]any)
	load := stages[1].(map[string]any)
	if load["last_status"] != "failure" || load["last_error"] != "warehouse unreachable" {
		t.Errorf("load: got %v", load)
	}
	if load["success_pct"].(float64) != 0 {
		t.Errorf("load success_pct: got %v", load["success_pct"])
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := api.New(api.Deps{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/stages ---------------------------------------------------------

func TestStages(t *testing.T) {
	h := api.New(api.Deps{Schedule: fakeSchedule{
		{Stage: "extract", Schedule: "daily at 02:00", At: t0.Add(24 * time.Hour)},
		{Stage: "transform", Schedule: "daily at 02:30", At: t0.Add(30 * time.Minute)},
	}})
	rr := get(t, h, "/api/v1/stages")

	var resp map[string][]map[string]any
	decode(t, rr, &resp)
	if len(resp["stages"]) != 2 {
		t.Fatalf("stages: got %d, want 2", len(resp["stages"]))
	}
	if resp["stages"][1]["next_run"] != "2024-06-01T02:30:00Z" {
		t.Errorf("next_run: got %v", resp["stages"][1]["next_run"])
	}
	if resp["outputs"] == nil {
		t.Error("outputs should be an empty list, not null")
	}
}

// --- /api/v1/outcomes -------------------------------------------------------

func TestOutcomes_Limit(t *testing.T) {
	ring := ringWith(
		telemetry.NewOutcome("extract", t0, t0, nil),
		telemetry.NewOutcome("transform", t0, t0, nil),
		telemetry.NewOutcome("load", t0, t0, errors.New("boom")),
	)
	h := api.New(api.Deps{Outcomes: ring})

	var all []telemetry.TaskOutcome
	decode(t, get(t, h, "/api/v1/outcomes"), &all)
	if len(all) != 3 {
		t.Fatalf("outcomes: got %d, want 3", len(all))
	}

	var two []telemetry.TaskOutcome
	decode(t, get(t, h, "/api/v1/outcomes?limit=2"), &two)
	if len(two) != 2 || two[1].Stage != "load" {
		t.Errorf("limit=2: got %+v", two)
	}
	if two[1].Error != "boom" {
		t.Errorf("error: got %q", two[1].Error)
	}
}

func TestOutcomes_BadLimit(t *testing.T) {
	h := api.New(api.Deps{Outcomes: ringWith()})
	for _, q := range []string{"abc", "0", "-3"} {
		rr := get(t, h, "/api/v1/outcomes?limit="+q)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: got %d, want 400", q, rr.Code)
		}
	}
}

func TestOutcomes_EmptyIsList(t *testing.T) {
	rr := get(t, api.New(api.Deps{Outcomes: ringWith()}), "/api/v1/outcomes")
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("body: got %q, want []", body)
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts(t *testing.T) {
	h := api.New(api.Deps{Alerts: fakeAlerts{
		{ID: "a2", Rule: "low_inventory", Subject: "Low Inventory Alert", Delivery: "failed", Reason: "smtp down"},
		{ID: "a1", Rule: "low_inventory", Subject: "Low Inventory Alert", Delivery: "delivered"},
	}})

	var resp []map[string]any
	decode(t, get(t, h, "/api/v1/alerts?limit=1"), &resp)
	if len(resp) != 1 {
		t.Fatalf("alerts: got %d, want 1", len(resp))
	}
	if resp[0]["id"] != "a2" || resp[0]["subject"] != "Low Inventory Alert" {
		t.Errorf("alert: got %v", resp[0])
	}
}

// --- /metrics ---------------------------------------------------------------

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("warehousepulse_stage_runs_total 1\n"))
	})
	rr := get(t, api.New(api.Deps{Metrics: metrics}), "/metrics")
	if rr.Code != http.StatusOK || rr.Body.String() != "warehousepulse_stage_runs_total 1\n" {
		t.Errorf("metrics: got %d %q", rr.Code, rr.Body.String())
	}

	rr = get(t, api.New(api.Deps{}), "/metrics")
	if rr.Code != http.StatusNotFound {
		t.Errorf("metrics without collector: got %d, want 404", rr.Code)
	}
}

func TestStreamMounted(t *testing.T) {
	stream := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	})
	rr := get(t, api.New(api.Deps{Stream: stream}), "/api/v1/stream")
	if rr.Code != http.StatusSwitchingProtocols {
		t.Errorf("stream: got %d, want 101", rr.Code)
	}

	rr = get(t, api.New(api.Deps{}), "/api/v1/stream")
	if rr.Code != http.StatusNotFound {
		t.Errorf("stream without hub: got %d, want 404", rr.Code)
	}
}
