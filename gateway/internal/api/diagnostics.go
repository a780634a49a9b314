package api

import (
	"fmt"
	"sort"

	"github.com/hydrolab/stationlink/gateway/internal/status"
)

// DiagnosticHint is one human-readable finding about the station.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints from the report and health, most severe
// first.
func computeDiagnostics(snap status.Snapshot, h status.Health) []DiagnosticHint {
	var hints []DiagnosticHint

	switch h.Code {
	case status.CodeTransport:
		hints = append(hints, DiagnosticHint{
			Key:   "serial_link_down",
			Level: "critical",
			Title: "Serial link down",
			Detail: fmt.Sprintf("The gateway cannot talk to the station controller: %q. "+
				"Check the USB cable and that the adapter is one of the supported types. "+
				"The gateway needs a restart to reopen the port.", h.Message),
		})
	case status.CodeUnavailable:
		hints = append(hints, DiagnosticHint{
			Key:    "device_failure",
			Level:  "critical",
			Title:  "Device reported failure",
			Detail: fmt.Sprintf("The controller reported a failure: %q.", h.Message),
		})
	}

	if snap.UpdatedAt.IsZero() {
		hints = append(hints, DiagnosticHint{
			Key:    "warming_up",
			Level:  "info",
			Title:  "Waiting for first report",
			Detail: "No readings have arrived yet. Values show defaults until the controller answers the first poll.",
		})
	} else {
		var unseen []string
		for _, group := range [][]string{status.ContainerIDs, status.PumpIDs, status.ValveIDs} {
			for _, id := range group {
				if !seen(snap, id) {
					unseen = append(unseen, id)
				}
			}
		}
		if len(unseen) > 0 {
			hints = append(hints, DiagnosticHint{
				Key:    "missing_slots",
				Level:  "warning",
				Title:  fmt.Sprintf("%d slots never reported", len(unseen)),
				Detail: fmt.Sprintf("These slots have not sent a reading since startup: %v.", unseen),
			})
		}
		if !snap.ReferenceSet {
			hints = append(hints, DiagnosticHint{
				Key:    "missing_reference",
				Level:  "warning",
				Title:  "No reference pressure",
				Detail: "The controller has not reported the reference pressure line.",
			})
		}
	}

	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{Key: "ok", Level: "ok", Title: "All good", Detail: "Every slot is reporting."})
	}
	sort.SliceStable(hints, func(i, j int) bool { return levelRank[hints[i].Level] < levelRank[hints[j].Level] })
	return hints
}

func seen(snap status.Snapshot, id string) bool {
	switch {
	case status.IsContainer(id):
		return snap.Containers[id].Seen
	case status.IsPump(id):
		return snap.Pumps[id].Seen
	case status.IsValve(id):
		return snap.Valves[id].Seen
	}
	return false
}
