package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hydrolab/stationlink/gateway/internal/config"
	"github.com/hydrolab/stationlink/gateway/internal/status"
)

const maxHistoryLen = 200

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert is one health incident: it opens on the first fault and closes when
// the health returns to 200. Later faults in the same incident update it.
type Alert struct {
	ID          string     `json:"id"`
	Workstation string     `json:"workstation"`
	State       string     `json:"state"`
	Code        int        `json:"code"`
	Condition   string     `json:"condition"`
	Message     string     `json:"message"`
	Since       time.Time  `json:"since"`
	FiredAt     time.Time  `json:"fired_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Recovery    string     `json:"recovery,omitempty"`

	// Suppressed is set while the firing notification was held back by
	// the cooldown.
	Suppressed bool `json:"suppressed,omitempty"`
}

// condition names a health code for people reading the notification.
func condition(code int) string {
	switch code {
	case status.CodeOK:
		return "ok"
	case status.CodeTransport:
		return "serial link down"
	case status.CodeUnavailable:
		return "device unavailable"
	default:
		return fmt.Sprintf("health %d", code)
	}
}

// Notifier turns health transitions into webhook deliveries. It is safe for
// concurrent use.
type Notifier struct {
	workstation string
	webhooks    []config.WebhookConfig
	cooldown    time.Duration

	mu       sync.Mutex
	active   *Alert
	lastFire time.Time
	history  []Alert

	client   *http.Client
	now      func() time.Time // injectable for deterministic tests
	inflight sync.WaitGroup
}

// New creates a Notifier from the alerts configuration.
func New(cfg config.AlertsConfig, workstation string) *Notifier {
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = config.DefaultAlertCooldown
	}
	return &Notifier{
		workstation: workstation,
		webhooks:    cfg.Webhooks,
		cooldown:    cooldown,
		client:      &http.Client{Timeout: 10 * time.Second},
		now:         time.Now,
	}
}

// OnHealthChange handles one transition. Its signature matches
// status.HealthStatus.OnChange.
func (n *Notifier) OnHealthChange(prev, next status.Health) {
	now := n.now()

	var out *Alert
	n.mu.Lock()
	switch {
	case next.Faulty():
		out = n.fault(prev, next, now)
	case next.Code == status.CodeOK:
		out = n.resolve(next, now)
	}
	n.mu.Unlock()

	if out != nil {
		n.dispatch(*out)
	}
}

// fault opens or updates the incident and returns the alert to deliver, or
// nil inside the cooldown. n.mu must be held.
func (n *Notifier) fault(prev, next status.Health, now time.Time) *Alert {
	a := n.active
	opened := a == nil
	if opened {
		a = &Alert{
			ID:          uuid.NewString(),
			Workstation: n.workstation,
			State:       StateFiring,
			FiredAt:     now,
		}
		n.active = a
	}
	a.Code = next.Code
	a.Condition = condition(next.Code)
	a.Message = next.Message
	a.Since = next.Since

	if now.Sub(n.lastFire) < n.cooldown {
		if opened {
			a.Suppressed = true
		}
		slog.Info("alerts: fault within cooldown, not notifying",
			"id", a.ID, "code", next.Code, "message", next.Message)
		return nil
	}
	n.lastFire = now
	a.Suppressed = false
	slog.Warn("alerts: fired", "id", a.ID, "code", next.Code, "previous", prev.Code, "message", next.Message)
	c := *a
	return &c
}

// resolve closes the open incident, if any. n.mu must be held.
func (n *Notifier) resolve(next status.Health, now time.Time) *Alert {
	a := n.active
	if a == nil {
		return nil
	}
	n.active = nil
	a.State = StateResolved
	a.ResolvedAt = &now
	a.Recovery = next.Message
	n.history = append(n.history, *a)
	if len(n.history) > maxHistoryLen {
		n.history = n.history[len(n.history)-maxHistoryLen:]
	}
	slog.Info("alerts: resolved", "id", a.ID, "code", a.Code, "suppressed", a.Suppressed)
	c := *a
	return &c
}

// Active returns a copy of the firing alert, or nil.
func (n *Notifier) Active() *Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.active == nil {
		return nil
	}
	a := *n.active
	return &a
}

// History returns resolved alerts, oldest first.
func (n *Notifier) History() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert(nil), n.history...)
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() { n.inflight.Wait() }

func (n *Notifier) dispatch(a Alert) {
	if len(n.webhooks) == 0 {
		return
	}
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		n.deliver(&a)
	}()
}
