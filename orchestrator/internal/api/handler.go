package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/alerts"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/health"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/orchestrator"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/stages"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Reporter produces the stage health report.
type Reporter interface {
	Report() health.Report
}

// Scheduler lists upcoming stage runs.
type Scheduler interface {
	NextRuns(now time.Time) []orchestrator.NextRun
}

// OutcomeLog returns the most recent outcomes, oldest first.
type OutcomeLog interface {
	Recent(limit int) []telemetry.TaskOutcome
}

// AlertLog returns recent alerts, newest first.
type AlertLog interface {
	Recent(limit int) []alerts.Alert
}

// OutputLister summarizes live stage outputs.
type OutputLister interface {
	Outputs() []stages.Output
}

// Deps are the read-only views the API serves. Nil fields produce empty
// responses.
type Deps struct {
	Health   Reporter
	Schedule Scheduler
	Outcomes OutcomeLog
	Alerts   AlertLog
	Outputs  OutputLister
	Metrics  http.Handler
	Stream   http.Handler
	Now      func() time.Time
}

// Handler is the HTTP handler for all status endpoints.
type Handler struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &Handler{deps: d, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/stages", h.stages)
	h.mux.HandleFunc("/api/v1/outcomes", h.outcomes)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	if d.Metrics != nil {
		h.mux.Handle("/metrics", d.Metrics)
	}
	if d.Stream != nil {
		h.mux.Handle("/api/v1/stream", d.Stream)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := HealthResponse{
		State:       health.StateUnknown,
		Stages:      []health.StageHealth{},
		GeneratedAt: h.deps.Now().UTC().Format(time.RFC3339),
	}
	if h.deps.Health != nil {
		rep := h.deps.Health.Report()
		resp.State = rep.State
		resp.Stages = rep.Stages
	}
	resp.StageCount = len(resp.Stages)
	if h.deps.Alerts != nil {
		resp.AlertCount = len(h.deps.Alerts.Recent(0))
	}
	jsonResp(w, http.StatusOK, resp)
}

// stages returns GET /api/v1/stages.
func (h *Handler) stages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := StagesResponse{
		Stages:  []orchestrator.NextRun{},
		Outputs: []stages.Output{},
	}
	if h.deps.Schedule != nil {
		resp.Stages = h.deps.Schedule.NextRuns(h.deps.Now())
	}
	if h.deps.Outputs != nil {
		resp.Outputs = h.deps.Outputs.Outputs()
	}
	jsonResp(w, http.StatusOK, resp)
}

// outcomes returns GET /api/v1/outcomes?limit=N.
func (h *Handler) outcomes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	out := []telemetry.TaskOutcome{}
	if h.deps.Outcomes != nil {
		if recent := h.deps.Outcomes.Recent(limit); recent != nil {
			out = recent
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// alerts returns GET /api/v1/alerts?limit=N.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	out := []alerts.Alert{}
	if h.deps.Alerts != nil {
		if recent := h.deps.Alerts.Recent(limit); recent != nil {
			out = recent
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// parseLimit reads ?limit=, defaulting to 50 and capping at 500. It writes
// a 400 and returns false for a malformed value.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}

// --- response helpers -------------------------------------------------------

func jsonResp(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, status int, msg string) {
	jsonResp(w, status, errorResponse{Error: msg})
}
