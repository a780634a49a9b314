package api

import (
	"time"

	"github.com/hydrolab/stationlink/gateway/internal/status"
)

// StatusResponse is the payload for GET /status.
type StatusResponse struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Since   time.Time `json:"since"`
}

// TaskResponse is the payload for an accepted POST /task.
type TaskResponse struct {
	Queued int `json:"queued"`
}

// ReportResponse is the payload for GET /api/v1/report.
type ReportResponse struct {
	status.Snapshot
	DeviceVersion string           `json:"device_version,omitempty"`
	Health        StatusResponse   `json:"health"`
	Diagnostics   []DiagnosticHint `json:"diagnostics"`
	GeneratedAt   string           `json:"generated_at"` // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
