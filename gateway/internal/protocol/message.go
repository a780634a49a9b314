package protocol

import "github.com/hydrolab/stationlink/gateway/internal/status"

// Message is one parsed frame. The concrete types in this file are the
// complete set of kinds; handlers switch over them.
type Message interface {
	isMessage()
}

// Banner is the device's hello line.
type Banner struct {
	Version string
}

// Fault is a diagnostic line reporting a device failure.
type Fault struct {
	Text string
}

// ReportFinished marks the end of a status dump.
type ReportFinished struct{}

// Diagnostic is any other diagnostic line.
type Diagnostic struct {
	Text string
}

// ContainerReading reports one container. The device sends 1 when the
// float switch is down.
type ContainerReading struct {
	Slot       string
	SwitchDown bool
	Pressure   float64
}

// ReferenceReading reports the reference pressure.
type ReferenceReading struct {
	Pressure float64
}

// PumpReading reports one pump.
type PumpReading struct {
	Slot    string
	Current float64
	Voltage float64
}

// ValveReading reports one valve.
type ValveReading struct {
	Slot    string
	Current float64
	Voltage float64
}

func (Banner) isMessage()           {}
func (Fault) isMessage()            {}
func (ReportFinished) isMessage()   {}
func (Diagnostic) isMessage()       {}
func (ContainerReading) isMessage() {}
func (ReferenceReading) isMessage() {}
func (PumpReading) isMessage()      {}
func (ValveReading) isMessage()     {}

// Update converts a reading into the status update it implies.
// The stored float-switch semantic is "is up", the inverse of the wire value.
func (m ContainerReading) Update() status.Update {
	return status.ContainerUpdate{Slot: m.Slot, FloatUp: !m.SwitchDown, Pressure: m.Pressure}
}

// Update converts a reading into the status update it implies.
func (m ReferenceReading) Update() status.Update {
	return status.ReferenceUpdate{Pressure: m.Pressure}
}

// Update converts a reading into the status update it implies.
func (m PumpReading) Update() status.Update {
	return status.PumpUpdate{Slot: m.Slot, Current: m.Current, Voltage: m.Voltage}
}

// Update converts a reading into the status update it implies.
func (m ValveReading) Update() status.Update {
	return status.ValveUpdate{Slot: m.Slot, Current: m.Current, Voltage: m.Voltage}
}
