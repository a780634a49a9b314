package status

import (
	"testing"
	"time"
)

func TestHealthStatus_SetAndGet(t *testing.T) {
	h := NewHealthStatus(CodeUnavailable, "starting")
	h.Set(CodeOK, "serial port opened")

	got := h.Get()
	if got.Code != CodeOK || got.Message != "serial port opened" {
		t.Errorf("Get: got %+v", got)
	}
	if got.Faulty() {
		t.Error("Faulty: got true for 200")
	}
}

func TestHealthStatus_ListenersOnCodeChangeOnly(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHealthStatus(CodeOK, "ok")
	h.now = fixedClock(base.Add(time.Minute))

	var calls []Health
	h.OnChange(func(_, next Health) { calls = append(calls, next) })

	h.Set(CodeOK, "still ok")
	if len(calls) != 0 {
		t.Fatalf("message-only change notified listeners: %+v", calls)
	}

	h.Set(CodeUnavailable, ">FAIL pump P1")
	if len(calls) != 1 {
		t.Fatalf("listener calls: got %d, want 1", len(calls))
	}
	if calls[0].Code != CodeUnavailable || !calls[0].Faulty() {
		t.Errorf("notified health: got %+v", calls[0])
	}
	if !calls[0].Since.Equal(base.Add(time.Minute)) {
		t.Errorf("Since: got %v", calls[0].Since)
	}
}
