package api

import (
	"github.com/relojcausal/relojcausal/server/internal/alerts"
	"github.com/relojcausal/relojcausal/server/internal/settings"
)

// ConfigResponse is the payload for GET and POST /api/config.
type ConfigResponse struct {
	OK     bool             `json:"ok"`
	Config settings.Runtime `json:"config"`
}

// AlertsResponse is the payload for GET /api/alerts.
type AlertsResponse struct {
	OK     bool            `json:"ok"`
	Alerts []*alerts.Alert `json:"alerts"`
}

// DiagnosticsResponse is the payload for GET /api/diagnostics.
type DiagnosticsResponse struct {
	OK    bool             `json:"ok"`
	Hints []DiagnosticHint `json:"hints"`
}

// ResetResponse is the payload for DELETE /api/reports.
type ResetResponse struct {
	OK      bool `json:"ok"`
	Cleared int  `json:"cleared"`
}

// HealthResponse is the payload for GET /healthz.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Reports int    `json:"reports"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
