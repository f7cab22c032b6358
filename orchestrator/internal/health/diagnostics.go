package health

import (
	"fmt"
	"sort"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/telemetry"
)

// Hint is one human-readable insight about a stage's health.
type Hint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional number associated with the hint.
	Value *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// Diagnose derives hints from a stage's health, critical first.
func Diagnose(h StageHealth) []Hint {
	if h.Runs == 0 {
		return []Hint{{
			Key:   "not_run",
			Level: "info",
			Title: "Waiting for first run",
			Detail: fmt.Sprintf("Stage %s has not run since the orchestrator started. "+
				"Its health is reported once the first scheduled run completes.", h.Stage),
		}}
	}

	var hints []Hint

	if h.LastStatus == telemetry.StatusFailure {
		detail := fmt.Sprintf("The last run of %s failed", h.Stage)
		if h.LastError != "" {
			detail += fmt.Sprintf(" with: %q", h.LastError)
		}
		detail += ". Stages that read its output will fail until it succeeds again."
		hints = append(hints, Hint{
			Key:    "last_run_failed",
			Level:  "critical",
			Title:  "Last run failed",
			Detail: detail,
		})
	}

	if h.SuccessPct < 100 {
		v := h.SuccessPct
		var level string
		switch {
		case v < 50:
			level = "critical"
		case v < 80:
			level = "warning"
		default:
			level = "info"
		}
		hints = append(hints, Hint{
			Key:   "success_rate",
			Level: level,
			Title: fmt.Sprintf("%.0f%% success", v),
			Detail: fmt.Sprintf("%s succeeded in %.0f%% of its last %d runs. "+
				"Check the outcome log for the failing runs' errors.", h.Stage, v, h.Runs),
			Value: &v,
		})
	}

	if h.DeliveryPct < 100 {
		v := h.DeliveryPct
		hints = append(hints, Hint{
			Key:   "delivery_failures",
			Level: "warning",
			Title: fmt.Sprintf("%.0f%% alerts delivered", v),
			Detail: fmt.Sprintf("Only %.0f%% of recent alerts raised after %s reached the notifier. "+
				"Check the notifier endpoint and credentials.", v, h.Stage),
			Value: &v,
		})
	}

	if len(hints) == 0 {
		score := h.Score
		hints = append(hints, Hint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf("%s succeeded in each of its last %d runs with a health score of %.0f/100.",
				h.Stage, h.Runs, score),
			Value: &score,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}
