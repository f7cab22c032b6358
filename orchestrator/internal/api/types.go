package api

import (
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/health"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/orchestrator"
	"github.com/warehousepulse/warehousepulse/orchestrator/internal/stages"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State       string               `json:"state"`
	StageCount  int                  `json:"stage_count"`
	AlertCount  int                  `json:"alert_count"`
	Stages      []health.StageHealth `json:"stages"`
	GeneratedAt string               `json:"generated_at"` // RFC3339
}

// StagesResponse is the payload for GET /api/v1/stages.
type StagesResponse struct {
	Stages  []orchestrator.NextRun `json:"stages"`
	Outputs []stages.Output        `json:"outputs"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
