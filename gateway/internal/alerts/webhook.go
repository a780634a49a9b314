package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hydrolab/stationlink/gateway/internal/status"
)

// fact is one labelled line of a chat notification.
type fact struct {
	Name  string
	Value string
}

// headline is the one-line summary shared by every target.
func headline(a *Alert) string {
	if a.State == StateResolved {
		return fmt.Sprintf("Station %s recovered from %s after %s",
			a.Workstation, a.Condition, a.ResolvedAt.Sub(a.FiredAt).Round(time.Second))
	}
	return fmt.Sprintf("Station %s: %s (%d)", a.Workstation, a.Condition, a.Code)
}

func facts(a *Alert) []fact {
	out := []fact{
		{"Station", a.Workstation},
		{"Health", fmt.Sprintf("%d %s", a.Code, a.Condition)},
		{"Reported", a.Message},
		{"Since", a.Since.UTC().Format(time.RFC3339)},
	}
	if a.State == StateResolved {
		out = append(out, fact{"Recovered", a.Recovery})
	}
	return out
}

// color is green on recovery, amber for a device-side fault and red when
// the serial link itself is down.
func color(a *Alert) string {
	switch {
	case a.State == StateResolved:
		return "2EB67D"
	case a.Code == status.CodeUnavailable:
		return "FFAB40"
	default:
		return "FF4F6A"
	}
}

// deliver sends a to every configured target. Errors are logged only.
func (n *Notifier) deliver(a *Alert) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body = httpPayload(a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := n.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "id", a.ID, "state", a.State, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "id", a.ID, "state", a.State)
	}
}

// slackPayload is an incoming-webhook message with one coloured attachment.
func slackPayload(a *Alert) []byte {
	type field struct {
		Title string `json:"title"`
		Value string `json:"value"`
		Short bool   `json:"short"`
	}
	var fields []field
	for _, f := range facts(a) {
		fields = append(fields, field{Title: f.Name, Value: f.Value, Short: f.Name != "Reported"})
	}
	body, _ := json.Marshal(map[string]any{
		"text": headline(a),
		"attachments": []map[string]any{{
			"color":  "#" + color(a),
			"fields": fields,
			"ts":     a.FiredAt.Unix(),
		}},
	})
	return body
}

// teamsPayload is a legacy connector MessageCard.
func teamsPayload(a *Alert) []byte {
	var rows []map[string]string
	for _, f := range facts(a) {
		rows = append(rows, map[string]string{"name": f.Name, "value": f.Value})
	}
	body, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": color(a),
		"summary":    headline(a),
		"title":      headline(a),
		"sections":   []map[string]any{{"facts": rows}},
	})
	return body
}

// httpPayload is the alert itself plus an event name for routing.
func httpPayload(a *Alert) []byte {
	body, _ := json.Marshal(struct {
		Event string `json:"event"`
		*Alert
	}{
		Event: "station.health." + a.State,
		Alert: a,
	})
	return body
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
