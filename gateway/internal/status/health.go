package status

import (
	"sync"
	"time"
)

// Health codes reported by the gateway.
const (
	CodeOK          = 200 // serial port opened, device talking
	CodeTransport   = 500 // no compatible device, or the port cannot be used
	CodeUnavailable = 503 // device reported FAIL, or not started yet
)

// Health describes the gateway's own operability.
type Health struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Since   time.Time `json:"since"`
}

// Faulty reports whether h represents a fault.
func (h Health) Faulty() bool { return h.Code >= CodeTransport }

// HealthStatus is the shared, concurrency-safe holder of the current Health.
type HealthStatus struct {
	mu        sync.RWMutex
	current   Health
	listeners []func(prev, next Health)
	now       func() time.Time
}

// NewHealthStatus returns a holder initialised to code/msg.
func NewHealthStatus(code int, msg string) *HealthStatus {
	h := &HealthStatus{now: time.Now}
	h.current = Health{Code: code, Message: msg, Since: h.now()}
	return h
}

// Get returns the current Health.
func (h *HealthStatus) Get() Health {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Set replaces the current Health. Listeners are notified, outside the lock,
// only when the code changes; Since is kept across message-only changes.
func (h *HealthStatus) Set(code int, msg string) {
	h.mu.Lock()
	prev := h.current
	next := Health{Code: code, Message: msg, Since: prev.Since}
	if code != prev.Code {
		next.Since = h.now()
	}
	h.current = next
	listeners := append([]func(prev, next Health){}, h.listeners...)
	h.mu.Unlock()

	if code == prev.Code {
		return
	}
	for _, fn := range listeners {
		fn(prev, next)
	}
}

// OnChange registers fn to be called after every code change.
func (h *HealthStatus) OnChange(fn func(prev, next Health)) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}
