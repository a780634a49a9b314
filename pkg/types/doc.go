// Package types defines shared Go types passed between the gateway's
// hardware module and its telemetry sinks (backend publisher, MQTT bridge,
// websocket hub). These are the canonical in-memory representations of a
// station metrics batch, separate from any wire envelope.
package types
