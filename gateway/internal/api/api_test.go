package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hydrolab/stationlink/gateway/internal/api"
	"github.com/hydrolab/stationlink/gateway/internal/hardware"
	"github.com/hydrolab/stationlink/gateway/internal/status"
	"github.com/hydrolab/stationlink/gateway/internal/task"
)

// --- test helpers -----------------------------------------------------------

type fakeStation struct {
	report  *status.Report
	health  status.Health
	version string
}

func (f *fakeStation) Snapshot() status.Snapshot { return f.report.Snapshot() }
func (f *fakeStation) Health() status.Health     { return f.health }
func (f *fakeStation) DeviceVersion() string     { return f.version }

type fakeDispatcher struct {
	got []task.ControlTask
	err error
}

func (f *fakeDispatcher) Dispatch(t task.ControlTask) (int, error) {
	f.got = append(f.got, t)
	if f.err != nil {
		return 0, f.err
	}
	if err := task.Validate(t); err != nil {
		return 0, err
	}
	return len(task.Commands(t)), nil
}

func newHandler(t *testing.T, code int) (http.Handler, *fakeStation, *fakeDispatcher) {
	t.Helper()
	st := &fakeStation{
		report:  status.NewReport(),
		health:  status.Health{Code: code, Message: "serial port opened", Since: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)},
		version: "v2.0",
	}
	d := &fakeDispatcher{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("metrics")) }) //nolint:errcheck
	return api.New(st, d, metrics, nil), st, d
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

// --- tests ------------------------------------------------------------------

func TestStatus_CodeIsHTTPStatus(t *testing.T) {
	for _, code := range []int{status.CodeOK, status.CodeTransport, status.CodeUnavailable} {
		h, _, _ := newHandler(t, code)
		rr := do(t, h, http.MethodGet, "/status", "")
		if rr.Code != code {
			t.Errorf("HTTP status = %d, want %d", rr.Code, code)
		}
		var resp api.StatusResponse
		decode(t, rr, &resp)
		if resp.Code != code || resp.Message != "serial port opened" {
			t.Errorf("body = %+v", resp)
		}
	}
}

func TestTask(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantQueued int
	}{
		{"turn on", `{"action":"turn-on","target":"P1","value":1}`, http.StatusAccepted, 1},
		{"stop all", `{"action":"stop-all"}`, http.StatusAccepted, 7},
		{"invalid target", `{"action":"turn-on","target":"C1"}`, http.StatusUnprocessableEntity, 0},
		{"unknown action", `{"action":"fly","target":"P1"}`, http.StatusUnprocessableEntity, 0},
		{"bad json", `{"action":`, http.StatusUnprocessableEntity, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newHandler(t, status.CodeOK)
			rr := do(t, h, http.MethodPost, "/task", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body: %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus == http.StatusAccepted {
				var resp api.TaskResponse
				decode(t, rr, &resp)
				if resp.Queued != tt.wantQueued {
					t.Errorf("queued = %d, want %d", resp.Queued, tt.wantQueued)
				}
			}
		})
	}
}

func TestTask_WriterStopped(t *testing.T) {
	h, _, d := newHandler(t, status.CodeOK)
	d.err = errors.Join(errors.New("task: queue"), hardware.ErrWriterStopped)

	rr := do(t, h, http.MethodPost, "/task", `{"action":"turn-off","target":"V1"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestReport(t *testing.T) {
	h, st, _ := newHandler(t, status.CodeOK)
	if err := st.report.Apply(status.PumpUpdate{Slot: "P2", Current: 0.4, Voltage: 12}); err != nil {
		t.Fatal(err)
	}

	rr := do(t, h, http.MethodGet, "/api/v1/report", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp api.ReportResponse
	decode(t, rr, &resp)
	if got := resp.Pumps["P2"]; got.Current != 0.4 || !got.Seen {
		t.Errorf("P2 = %+v", got)
	}
	if resp.DeviceVersion != "v2.0" {
		t.Errorf("device_version = %q", resp.DeviceVersion)
	}
	if len(resp.Diagnostics) == 0 || resp.Diagnostics[0].Key != "missing_slots" {
		t.Errorf("diagnostics = %+v, want missing_slots first", resp.Diagnostics)
	}
}

func TestReport_DiagnosticsOrder(t *testing.T) {
	h, _, _ := newHandler(t, status.CodeTransport)
	var resp api.ReportResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/report", ""), &resp)

	if len(resp.Diagnostics) != 2 {
		t.Fatalf("diagnostics = %+v, want 2", resp.Diagnostics)
	}
	if resp.Diagnostics[0].Key != "serial_link_down" || resp.Diagnostics[1].Key != "warming_up" {
		t.Errorf("order = %s, %s", resp.Diagnostics[0].Key, resp.Diagnostics[1].Key)
	}
}

func TestTestRouteAndMetrics(t *testing.T) {
	h, _, _ := newHandler(t, status.CodeOK)

	rr := do(t, h, http.MethodGet, "/test", "")
	var msg string
	decode(t, rr, &msg)
	if msg != "Hello world" {
		t.Errorf("/test = %q", msg)
	}

	rr = do(t, h, http.MethodGet, "/metrics", "")
	if rr.Body.String() != "metrics" {
		t.Errorf("/metrics not delegated: %q", rr.Body.String())
	}

	if rr := do(t, h, http.MethodGet, "/ws/stream", ""); rr.Code != http.StatusNotFound {
		t.Errorf("/ws/stream without hub = %d, want 404", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := newHandler(t, status.CodeOK)
	for _, c := range []struct{ method, path string }{
		{http.MethodPost, "/status"},
		{http.MethodGet, "/task"},
		{http.MethodDelete, "/api/v1/report"},
		{http.MethodPut, "/test"},
	} {
		if rr := do(t, h, c.method, c.path, ""); rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", c.method, c.path, rr.Code)
		}
	}
}
