// Package hardware owns the serial link to the station controller.
//
// Communicator runs two long-lived loops for the lifetime of the process:
//
//   - the reader loop reads chunks from the port (bounded by the port read
//     timeout), reassembles frames with protocol.FrameReader, parses them and
//     applies readings to the shared status.Report. A ">REPORT FINISHED" line
//     snapshots the report and ships the flattened batch to every sink.
//   - the writer loop (Writer) is the only goroutine that writes to the port.
//     It drains a FIFO command queue and appends a "?" poll once per poll
//     interval.
//
// The port is partitioned: the reader only reads, the writer only writes.
// Device discovery (Discover) matches USB VID/PID pairs and runs once at
// startup; when no device is found the reader backs off and the failure is
// reported through status.HealthStatus.
package hardware
