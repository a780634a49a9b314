package task

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hydrolab/stationlink/gateway/internal/protocol"
	"github.com/hydrolab/stationlink/gateway/internal/status"
)

// ErrInvalidTask wraps every validation failure.
var ErrInvalidTask = errors.New("invalid task")

// Actions.
const (
	ActionTurnOn  = "turn-on"
	ActionTurnOff = "turn-off"
	ActionStopAll = "stop-all"
)

// ControlTask is one operator request.
type ControlTask struct {
	Action     string      `json:"action" validate:"required,oneof=turn-on turn-off stop-all"`
	Target     string      `json:"target"`
	Value      int         `json:"value" validate:"oneof=0 1"`
	Conditions *Conditions `json:"conditions,omitempty" validate:"omitempty"`
}

// Conditions gate a task on the station state. They are validated and
// carried but not evaluated.
type Conditions struct {
	Operator string      `json:"operator" validate:"required,oneof=and or"`
	Items    []Condition `json:"conditionlist" validate:"required,min=1,dive"`
}

// Condition is a single comparison against a metric.
type Condition struct {
	Type        string  `json:"type" validate:"required,oneof=timeout equal less more moreequal lessequal"`
	Measurement string  `json:"measurement" validate:"required_unless=Type timeout"`
	Field       string  `json:"field" validate:"required_unless=Type timeout"`
	Value       float64 `json:"value"`
}

var actuatorID = regexp.MustCompile(`^[PV][0-9]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateTarget, ControlTask{})
	return v
}

// validateTarget applies the actuator rule: turn-on and turn-off need a
// pump or valve id. stop-all ignores the target.
func validateTarget(sl validator.StructLevel) {
	t := sl.Current().Interface().(ControlTask)
	if t.Action != ActionTurnOn && t.Action != ActionTurnOff {
		return
	}
	switch {
	case t.Target == "":
		sl.ReportError(t.Target, "target", "Target", "required", "")
	case !actuatorID.MatchString(t.Target):
		sl.ReportError(t.Target, "target", "Target", "actuator", "")
	}
}

// Validate checks t. The returned error wraps ErrInvalidTask and names the
// first offending field.
func Validate(t ControlTask) error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: field %s fails %q (got %v)", ErrInvalidTask, fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("%w: %v", ErrInvalidTask, err)
}

// Commands returns the device commands for a valid task, in send order.
func Commands(t ControlTask) []string {
	switch t.Action {
	case ActionTurnOn:
		return []string{protocol.SetCommand(t.Target, true)}
	case ActionTurnOff:
		return []string{protocol.SetCommand(t.Target, false)}
	case ActionStopAll:
		ids := make([]string, 0, len(status.PumpIDs)+len(status.ValveIDs))
		ids = append(ids, status.PumpIDs...)
		ids = append(ids, status.ValveIDs...)
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = protocol.SetCommand(id, false)
		}
		return out
	}
	return nil
}
