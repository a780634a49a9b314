// Package exposition renders the live station report in the Prometheus
// exposition format.
//
// Every call builds dto.MetricFamily values from a status.Snapshot, the
// current health and the communicator counters, then encodes them with
// expfmt in the format negotiated from the request's Accept header.
package exposition
