// Package status holds the gateway's two pieces of shared state: the station
// Report (every container, pump and valve slot the device exposes) and the
// gateway's own HealthStatus.
//
// Report is mutated only through Apply and read only through Snapshot; both
// take the same mutex, so a snapshot handed to the publisher is never torn
// across a two-field update. Slot identifiers are fixed at startup
// (ContainerIDs, PumpIDs, ValveIDs); Apply rejects any other identifier with
// ErrUnknownSlot.
//
// HealthStatus is a (code, message) pair describing whether the serial link
// is usable. Listeners registered with OnChange run after every code change.
package status
