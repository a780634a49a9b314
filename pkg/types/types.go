package types

import "time"

// Metric is the atomic unit pushed to the backend: one scalar field of one
// station slot.
type Metric struct {
	Measurement string  `json:"measurement"`
	Field       string  `json:"field"`
	Value       float64 `json:"value"`
}

// Batch is one full flattening of the station report, tagged with the
// workstation that produced it.
type Batch struct {
	WorkstationName string    `json:"workstation_name"`
	Metrics         []Metric  `json:"metrics"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Sink receives batches from the hardware module.
// Ship must not block the caller; the reader loop calls it inline.
type Sink interface {
	Ship(Batch)
}
