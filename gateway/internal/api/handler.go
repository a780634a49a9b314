package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hydrolab/stationlink/gateway/internal/hardware"
	"github.com/hydrolab/stationlink/gateway/internal/status"
	"github.com/hydrolab/stationlink/gateway/internal/task"
)

const maxTaskBody = 64 << 10

// Station is the read side of the gateway.
type Station interface {
	Snapshot() status.Snapshot
	Health() status.Health
	DeviceVersion() string
}

// Dispatcher queues control tasks.
type Dispatcher interface {
	Dispatch(t task.ControlTask) (int, error)
}

// Handler is the HTTP handler for the control plane.
type Handler struct {
	station    Station
	dispatcher Dispatcher
	mux        *http.ServeMux
}

// New creates a Handler and registers all routes. metrics and stream may be
// nil, in which case their routes are not registered.
func New(st Station, d Dispatcher, metrics, stream http.Handler) http.Handler {
	h := &Handler{station: st, dispatcher: d, mux: http.NewServeMux()}

	h.mux.HandleFunc("/status", h.status)
	h.mux.HandleFunc("/task", h.task)
	h.mux.HandleFunc("/api/v1/report", h.report)
	h.mux.HandleFunc("/test", h.test)
	if metrics != nil {
		h.mux.Handle("/metrics", metrics)
	}
	if stream != nil {
		h.mux.Handle("/ws/stream", stream)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// status returns GET /status. The HTTP status code is the health code.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hs := h.station.Health()
	jsonResp(w, hs.Code, toStatusResponse(hs))
}

// task handles POST /task.
func (h *Handler) task(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var t task.ControlTask
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTaskBody)).Decode(&t); err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, "invalid task body: "+err.Error())
		return
	}

	n, err := h.dispatcher.Dispatch(t)
	switch {
	case err == nil:
		jsonResp(w, http.StatusAccepted, TaskResponse{Queued: n})
	case errors.Is(err, task.ErrInvalidTask):
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, hardware.ErrWriterStopped):
		jsonErr(w, http.StatusServiceUnavailable, "command writer is not running")
	default:
		slog.Error("api: dispatch failed", "action", t.Action, "err", err)
		jsonErr(w, http.StatusInternalServerError, "dispatch failed")
	}
}

// report returns GET /api/v1/report.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildReport(h.station))
}

// test returns GET /test.
func (h *Handler) test(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, "Hello world")
}

// BuildReport assembles the report payload. The websocket hub uses it for
// its snapshot events.
func BuildReport(st Station) ReportResponse {
	snap := st.Snapshot()
	hs := st.Health()
	return ReportResponse{
		Snapshot:      snap,
		DeviceVersion: st.DeviceVersion(),
		Health:        toStatusResponse(hs),
		Diagnostics:   computeDiagnostics(snap, hs),
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toStatusResponse(hs status.Health) StatusResponse {
	return StatusResponse{Code: hs.Code, Message: hs.Message, Since: hs.Since}
}
