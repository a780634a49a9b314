package status

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hydrolab/stationlink/pkg/types"
)

// ErrUnknownSlot is returned when an update names a slot the station does
// not have.
var ErrUnknownSlot = errors.New("unknown slot")

// Slot identifiers, in the order they are flattened into metrics.
var (
	ContainerIDs = []string{"C1", "C2", "C3", "C4", "C5"}
	PumpIDs      = []string{"P1", "P2", "P3", "P4"}
	ValveIDs     = []string{"V1", "V2", "V3"}
)

// ReferenceField is the metric field name used for the reference pressure.
const ReferenceField = "reference"

// Measurement names used when flattening a snapshot.
const (
	MeasurementFloatSwitch = "float_switch_up"
	MeasurementPressure    = "pressure"
	MeasurementCurrent     = "current"
	MeasurementVoltage     = "voltage"
)

// MetricCount is the number of scalar fields a snapshot flattens into.
var MetricCount = 2*len(ContainerIDs) + 1 + 2*len(PumpIDs) + 2*len(ValveIDs)

// Container is one container slot: float switch and pressure [hPa].
type Container struct {
	FloatUp  bool    `json:"float_up"`
	Pressure float64 `json:"pressure"`
	Seen     bool    `json:"seen"`
}

// Actuator is one pump or valve slot: current [A] and voltage [V].
type Actuator struct {
	Current float64 `json:"current"`
	Voltage float64 `json:"voltage"`
	Seen    bool    `json:"seen"`
}

// Update is a single change to the report. The concrete types below are the
// complete set; Apply rejects anything else.
type Update interface {
	isUpdate()
}

// ContainerUpdate sets both fields of a container slot.
type ContainerUpdate struct {
	Slot     string
	FloatUp  bool
	Pressure float64
}

// ReferenceUpdate sets the reference pressure.
type ReferenceUpdate struct {
	Pressure float64
}

// PumpUpdate sets both fields of a pump slot.
type PumpUpdate struct {
	Slot    string
	Current float64
	Voltage float64
}

// ValveUpdate sets both fields of a valve slot.
type ValveUpdate struct {
	Slot    string
	Current float64
	Voltage float64
}

func (ContainerUpdate) isUpdate() {}
func (ReferenceUpdate) isUpdate() {}
func (PumpUpdate) isUpdate()      {}
func (ValveUpdate) isUpdate()     {}

// Report is the aggregated, lock-protected state of every station slot.
// It lives for the lifetime of the process.
type Report struct {
	mu           sync.Mutex
	containers   map[string]Container
	reference    float64
	referenceSet bool
	pumps        map[string]Actuator
	valves       map[string]Actuator
	updatedAt    time.Time
	now          func() time.Time // injectable for deterministic tests
}

// NewReport returns a Report with every slot at its default (no data yet).
func NewReport() *Report {
	r := &Report{
		containers: make(map[string]Container, len(ContainerIDs)),
		pumps:      make(map[string]Actuator, len(PumpIDs)),
		valves:     make(map[string]Actuator, len(ValveIDs)),
		now:        time.Now,
	}
	for _, id := range ContainerIDs {
		r.containers[id] = Container{}
	}
	for _, id := range PumpIDs {
		r.pumps[id] = Actuator{}
	}
	for _, id := range ValveIDs {
		r.valves[id] = Actuator{}
	}
	return r
}

// Apply performs u atomically with respect to Snapshot.
func (r *Report) Apply(u Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch u := u.(type) {
	case ContainerUpdate:
		if _, ok := r.containers[u.Slot]; !ok {
			return fmt.Errorf("container %q: %w", u.Slot, ErrUnknownSlot)
		}
		r.containers[u.Slot] = Container{FloatUp: u.FloatUp, Pressure: u.Pressure, Seen: true}
	case ReferenceUpdate:
		r.reference = u.Pressure
		r.referenceSet = true
	case PumpUpdate:
		if _, ok := r.pumps[u.Slot]; !ok {
			return fmt.Errorf("pump %q: %w", u.Slot, ErrUnknownSlot)
		}
		r.pumps[u.Slot] = Actuator{Current: u.Current, Voltage: u.Voltage, Seen: true}
	case ValveUpdate:
		if _, ok := r.valves[u.Slot]; !ok {
			return fmt.Errorf("valve %q: %w", u.Slot, ErrUnknownSlot)
		}
		r.valves[u.Slot] = Actuator{Current: u.Current, Voltage: u.Voltage, Seen: true}
	default:
		return fmt.Errorf("status: unsupported update %T", u)
	}
	r.updatedAt = r.now()
	return nil
}

// Snapshot is a consistent copy of the report at one instant.
type Snapshot struct {
	Containers   map[string]Container `json:"containers"`
	Reference    float64              `json:"reference_pressure"`
	ReferenceSet bool                 `json:"reference_seen"`
	Pumps        map[string]Actuator  `json:"pumps"`
	Valves       map[string]Actuator  `json:"valves"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Snapshot returns a deep copy taken under the report lock.
func (r *Report) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Containers:   make(map[string]Container, len(r.containers)),
		Reference:    r.reference,
		ReferenceSet: r.referenceSet,
		Pumps:        make(map[string]Actuator, len(r.pumps)),
		Valves:       make(map[string]Actuator, len(r.valves)),
		UpdatedAt:    r.updatedAt,
	}
	for id, c := range r.containers {
		s.Containers[id] = c
	}
	for id, a := range r.pumps {
		s.Pumps[id] = a
	}
	for id, a := range r.valves {
		s.Valves[id] = a
	}
	return s
}

// Metrics flattens the snapshot in slot order: containers, reference,
// pumps, valves. Slots without data contribute their defaults, so the
// result always holds MetricCount entries.
func (s Snapshot) Metrics() []types.Metric {
	out := make([]types.Metric, 0, MetricCount)
	for _, id := range ContainerIDs {
		c := s.Containers[id]
		out = append(out,
			types.Metric{Measurement: MeasurementFloatSwitch, Field: id, Value: boolToFloat(c.FloatUp)},
			types.Metric{Measurement: MeasurementPressure, Field: id, Value: c.Pressure},
		)
	}
	out = append(out, types.Metric{Measurement: MeasurementPressure, Field: ReferenceField, Value: s.Reference})
	for _, id := range PumpIDs {
		out = appendActuator(out, id, s.Pumps[id])
	}
	for _, id := range ValveIDs {
		out = appendActuator(out, id, s.Valves[id])
	}
	return out
}

func appendActuator(out []types.Metric, id string, a Actuator) []types.Metric {
	return append(out,
		types.Metric{Measurement: MeasurementCurrent, Field: id, Value: a.Current},
		types.Metric{Measurement: MeasurementVoltage, Field: id, Value: a.Voltage},
	)
}

// IsContainer reports whether id is a known container slot.
func IsContainer(id string) bool { return contains(ContainerIDs, id) }

// IsPump reports whether id is a known pump slot.
func IsPump(id string) bool { return contains(PumpIDs, id) }

// IsValve reports whether id is a known valve slot.
func IsValve(id string) bool { return contains(ValveIDs, id) }

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
