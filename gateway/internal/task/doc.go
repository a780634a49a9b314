// Package task validates control tasks from the control plane and turns
// them into device commands.
//
// A task names an action (turn-on, turn-off, stop-all) and, for the first
// two, an actuator such as "P1" or "V3". Dispatch validates the task and
// queues the resulting "SET <id> ON|OFF" commands through a Sender, which in
// production is the hardware writer.
package task
