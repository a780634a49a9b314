// Package mqtt mirrors station telemetry to an MQTT broker and accepts
// control tasks from it.
//
// Topics, under <prefix>/<workstation>/:
//
//	metrics  published: every completed status report as a JSON batch
//	health   published, retained: the gateway health on every code change
//	task     subscribed: ControlTask JSON, fed to the task dispatcher
//
// The paho client reconnects on its own and resubscribes in its OnConnect
// handler. Ship never waits on a publish token in the caller.
package mqtt
