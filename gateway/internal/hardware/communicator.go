package hardware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hydrolab/stationlink/gateway/internal/config"
	"github.com/hydrolab/stationlink/gateway/internal/protocol"
	"github.com/hydrolab/stationlink/gateway/internal/status"
	"github.com/hydrolab/stationlink/pkg/types"
)

const readChunk = 256

// Stats is a point-in-time copy of the communicator counters.
type Stats struct {
	FramesHandled   uint64 `json:"frames_handled"`
	FramesDropped   uint64 `json:"frames_dropped"`
	Publishes       uint64 `json:"publishes"`
	CommandsWritten uint64 `json:"commands_written"`
	CommandsDropped uint64 `json:"commands_dropped"`
	Polls           uint64 `json:"polls"`
}

// Communicator owns the serial port: it reads and parses frames, keeps the
// status report current and forwards commands to the writer.
type Communicator struct {
	cfg    config.Config
	report *status.Report
	health *status.HealthStatus
	sinks  []types.Sink
	writer *Writer
	frames protocol.FrameReader
	known  []USBID

	mu      sync.Mutex
	port    Port
	version string

	// injectable for tests
	discover func([]USBID) (string, error)
	open     func(path string, baud int, readTimeout time.Duration) (Port, error)

	handled   atomic.Uint64
	dropped   atomic.Uint64
	publishes atomic.Uint64
}

// New creates a Communicator. Batches produced on ">REPORT FINISHED" are
// handed to every sink.
func New(cfg config.Config, report *status.Report, health *status.HealthStatus, sinks ...types.Sink) *Communicator {
	known := append([]USBID(nil), KnownDevices...)
	for _, id := range cfg.Serial.USBIDs {
		known = append(known, USBID{VID: id.VID, PID: id.PID})
	}
	return &Communicator{
		cfg:      cfg,
		report:   report,
		health:   health,
		sinks:    sinks,
		writer:   NewWriter(cfg.PollInterval, cfg.QueueTimeout),
		known:    known,
		discover: Discover,
		open:     OpenPort,
	}
}

// Writer returns the command writer, for poll interval hot-reload.
func (c *Communicator) Writer() *Writer { return c.writer }

// Open resolves the device path and opens the port. It runs once; failures
// are reported through the health status and the reader loop backs off.
func (c *Communicator) Open() {
	path := c.cfg.Serial.Port
	if path == "" {
		found, err := c.discover(c.known)
		if err != nil {
			slog.Error("hardware: device discovery failed", "err", err)
			c.health.Set(status.CodeTransport, "no compatible device found")
			return
		}
		path = found
		slog.Info("hardware: device discovered", "port", path)
	}

	p, err := c.open(path, c.cfg.Serial.BaudRate, c.cfg.Serial.ReadTimeout)
	if err != nil {
		slog.Error("hardware: open failed", "port", path, "err", err)
		c.health.Set(status.CodeTransport, fmt.Sprintf("can't open serial port %s", path))
		return
	}
	c.attach(p)
	slog.Info("hardware: serial port opened", "port", path, "baud", c.cfg.Serial.BaudRate)
	c.health.Set(status.CodeOK, "serial port opened")
}

func (c *Communicator) attach(p Port) {
	c.mu.Lock()
	c.port = p
	c.mu.Unlock()
	c.frames.Reset()
	c.writer.Attach(p)
}

func (c *Communicator) detach() {
	c.writer.Attach(nil)
	c.mu.Lock()
	p := c.port
	c.port = nil
	c.mu.Unlock()
	if p != nil {
		_ = p.Close()
	}
}

func (c *Communicator) currentPort() Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// Run starts the writer and runs the reader loop until ctx is cancelled.
// The writer has exited by the time Run returns.
func (c *Communicator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writer.Run(ctx)
	}()

	c.readLoop(ctx)

	wg.Wait()
	c.detach()
	slog.Info("hardware: communicator stopped")
}

func (c *Communicator) readLoop(ctx context.Context) {
	buf := make([]byte, readChunk)
	for ctx.Err() == nil {
		p := c.currentPort()
		if p == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.Serial.ReopenBackoff):
			}
			continue
		}

		n, err := p.Read(buf)
		if n > 0 {
			overflows := c.frames.Overflows()
			for _, frame := range c.frames.Feed(buf[:n]) {
				c.HandleFrame(frame)
			}
			if d := c.frames.Overflows() - overflows; d > 0 {
				c.dropped.Add(uint64(d))
				slog.Debug("hardware: oversized frame discarded", "count", d)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("hardware: read failed, port closed", "err", err)
			c.detach()
			c.health.Set(status.CodeTransport, err.Error())
		}
	}
}

// HandleFrame parses one frame and applies its effect. Malformed frames are
// logged at debug level and dropped.
func (c *Communicator) HandleFrame(line string) {
	msg, err := protocol.Parse(line)
	if err != nil {
		c.dropped.Add(1)
		slog.Debug("hardware: frame dropped", "frame", line, "err", err)
		return
	}
	c.handled.Add(1)

	switch m := msg.(type) {
	case protocol.Banner:
		c.mu.Lock()
		c.version = m.Version
		c.mu.Unlock()
		slog.Info("hardware: device banner", "version", m.Version)
	case protocol.Fault:
		slog.Error("hardware: device reported failure", "line", m.Text)
		c.health.Set(status.CodeUnavailable, m.Text)
	case protocol.ReportFinished:
		c.publish()
	case protocol.Diagnostic:
		slog.Debug("hardware: device diagnostic", "line", m.Text)
	case protocol.ContainerReading:
		c.apply(m.Update())
	case protocol.ReferenceReading:
		c.apply(m.Update())
	case protocol.PumpReading:
		c.apply(m.Update())
	case protocol.ValveReading:
		c.apply(m.Update())
	}
}

func (c *Communicator) apply(u status.Update) {
	if err := c.report.Apply(u); err != nil {
		slog.Debug("hardware: reading rejected", "err", err)
	}
}

func (c *Communicator) publish() {
	snap := c.report.Snapshot()
	b := types.Batch{
		WorkstationName: c.cfg.WorkstationName,
		Metrics:         snap.Metrics(),
		CollectedAt:     time.Now().UTC(),
	}
	for _, s := range c.sinks {
		s.Ship(b)
	}
	c.publishes.Add(1)
	slog.Debug("hardware: report published", "metrics", len(b.Metrics), "sinks", len(c.sinks))
}

// Send queues cmd for the writer.
func (c *Communicator) Send(cmd string) error {
	if err := c.writer.Send(cmd); err != nil {
		if errors.Is(err, ErrWriterStopped) {
			slog.Warn("hardware: command refused, writer stopped", "command", cmd)
		}
		return err
	}
	return nil
}

// DeviceVersion returns the version from the last banner, or "".
func (c *Communicator) DeviceVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Stats returns a copy of the counters.
func (c *Communicator) Stats() Stats {
	return Stats{
		FramesHandled:   c.handled.Load(),
		FramesDropped:   c.dropped.Load(),
		Publishes:       c.publishes.Load(),
		CommandsWritten: c.writer.written.Load(),
		CommandsDropped: c.writer.dropped.Load(),
		Polls:           c.writer.polls.Load(),
	}
}

// Snapshot returns a copy of the station report.
func (c *Communicator) Snapshot() status.Snapshot { return c.report.Snapshot() }

// Health returns the current gateway health.
func (c *Communicator) Health() status.Health { return c.health.Get() }
