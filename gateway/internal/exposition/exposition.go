package exposition

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/hydrolab/stationlink/gateway/internal/status"
)

// Metric names.
const (
	FloatUp           = "station_container_float_up"
	ContainerPressure = "station_container_pressure_hpa"
	ReferencePressure = "station_reference_pressure_hpa"
	ActuatorCurrent   = "station_actuator_current_amperes"
	ActuatorVoltage   = "station_actuator_voltage_volts"
	HealthCode        = "station_health_code"
	FramesTotal       = "station_frames_total"
	FramesDropped     = "station_frames_dropped_total"
	PublishesTotal    = "station_publishes_total"
)

// Stats are the counters exported alongside the report.
type Stats struct {
	FramesHandled uint64
	FramesDropped uint64
	Publishes     uint64
}

// Families builds the metric families for one scrape, sorted by name.
func Families(snap status.Snapshot, h status.Health, stats Stats) []*dto.MetricFamily {
	floatUp := family(FloatUp, "Container float switch, 1 when the float is up.", dto.MetricType_GAUGE)
	pressure := family(ContainerPressure, "Container pressure in hPa.", dto.MetricType_GAUGE)
	for _, id := range status.ContainerIDs {
		c := snap.Containers[id]
		v := 0.0
		if c.FloatUp {
			v = 1
		}
		floatUp.Metric = append(floatUp.Metric, gauge(v, label("slot", id)))
		pressure.Metric = append(pressure.Metric, gauge(c.Pressure, label("slot", id)))
	}

	ref := family(ReferencePressure, "Reference pressure in hPa.", dto.MetricType_GAUGE)
	ref.Metric = append(ref.Metric, gauge(snap.Reference))

	current := family(ActuatorCurrent, "Actuator current draw in amperes.", dto.MetricType_GAUGE)
	voltage := family(ActuatorVoltage, "Actuator supply voltage in volts.", dto.MetricType_GAUGE)
	addActuators := func(kind string, ids []string, slots map[string]status.Actuator) {
		for _, id := range ids {
			a := slots[id]
			current.Metric = append(current.Metric, gauge(a.Current, label("kind", kind), label("slot", id)))
			voltage.Metric = append(voltage.Metric, gauge(a.Voltage, label("kind", kind), label("slot", id)))
		}
	}
	addActuators("pump", status.PumpIDs, snap.Pumps)
	addActuators("valve", status.ValveIDs, snap.Valves)

	health := family(HealthCode, "Gateway health code: 200 ok, 500 transport fault, 503 device fault.", dto.MetricType_GAUGE)
	health.Metric = append(health.Metric, gauge(float64(h.Code)))

	frames := family(FramesTotal, "Frames parsed from the serial link.", dto.MetricType_COUNTER)
	frames.Metric = append(frames.Metric, counter(float64(stats.FramesHandled)))
	dropped := family(FramesDropped, "Frames dropped as malformed or oversized.", dto.MetricType_COUNTER)
	dropped.Metric = append(dropped.Metric, counter(float64(stats.FramesDropped)))
	publishes := family(PublishesTotal, "Completed status reports handed to sinks.", dto.MetricType_COUNTER)
	publishes.Metric = append(publishes.Metric, counter(float64(stats.Publishes)))

	out := []*dto.MetricFamily{floatUp, pressure, ref, current, voltage, health, frames, dropped, publishes}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// Write encodes the families for one scrape to w in format.
func Write(w io.Writer, format expfmt.Format, snap status.Snapshot, h status.Health, stats Stats) error {
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range Families(snap, h, stats) {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("exposition: encode %s: %w", mf.GetName(), err)
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("exposition: close encoder: %w", err)
		}
	}
	return nil
}

// Source supplies the values for one scrape.
type Source interface {
	Snapshot() status.Snapshot
	Health() status.Health
	Stats() Stats
}

// Handler serves src at the negotiated exposition format.
func Handler(src Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))
		if err := Write(w, format, src.Snapshot(), src.Health(), src.Stats()); err != nil {
			slog.Error("exposition: write failed", "err", err)
		}
	})
}

func family(name, help string, t dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: t.Enum(),
	}
}

func gauge(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func counter(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}
