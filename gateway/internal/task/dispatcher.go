package task

import (
	"fmt"
	"log/slog"
)

// Sender queues one device command.
type Sender interface {
	Send(cmd string) error
}

// Dispatcher validates tasks and hands their commands to a Sender.
type Dispatcher struct {
	sender Sender
}

// NewDispatcher returns a Dispatcher writing through s.
func NewDispatcher(s Sender) *Dispatcher {
	return &Dispatcher{sender: s}
}

// Dispatch validates t and queues its commands. It returns how many
// commands were queued; on a send error the remaining commands are not
// queued.
func (d *Dispatcher) Dispatch(t ControlTask) (int, error) {
	if err := Validate(t); err != nil {
		return 0, err
	}
	if t.Conditions != nil {
		slog.Info("task: conditions accepted but not evaluated",
			"action", t.Action, "operator", t.Conditions.Operator, "conditions", len(t.Conditions.Items))
	}

	cmds := Commands(t)
	for i, cmd := range cmds {
		if err := d.sender.Send(cmd); err != nil {
			return i, fmt.Errorf("task: queue %q: %w", cmd, err)
		}
	}
	slog.Info("task: dispatched", "action", t.Action, "target", t.Target, "commands", len(cmds))
	return len(cmds), nil
}
