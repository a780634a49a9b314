package hardware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hydrolab/stationlink/gateway/internal/protocol"
)

// ErrWriterStopped is returned by Send once the writer loop has exited.
var ErrWriterStopped = errors.New("command writer stopped")

// Writer serialises every outbound command to the device. Send may be
// called from any goroutine; Run must be called exactly once.
type Writer struct {
	queue        *commandQueue
	queueTimeout time.Duration
	pollInterval atomic.Int64 // time.Duration

	mu  sync.Mutex
	out io.Writer // nil while no port is attached

	lastPoll time.Time        // owned by Run
	now      func() time.Time // injectable for deterministic tests

	written atomic.Uint64
	polls   atomic.Uint64
	dropped atomic.Uint64
}

// NewWriter returns a Writer that waits up to queueTimeout for a command and
// asks for a status dump every pollInterval.
func NewWriter(pollInterval, queueTimeout time.Duration) *Writer {
	w := &Writer{
		queue:        newCommandQueue(),
		queueTimeout: queueTimeout,
		now:          time.Now,
	}
	w.pollInterval.Store(int64(pollInterval))
	return w
}

// Attach sets the destination for writes. Passing nil detaches it.
func (w *Writer) Attach(out io.Writer) {
	w.mu.Lock()
	w.out = out
	w.mu.Unlock()
}

// SetPollInterval changes the poll cadence; the next check uses it.
func (w *Writer) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval.Store(int64(d))
	}
}

// PollInterval returns the current poll cadence.
func (w *Writer) PollInterval() time.Duration {
	return time.Duration(w.pollInterval.Load())
}

// Send queues cmd for delivery. CRLF is appended when missing.
func (w *Writer) Send(cmd string) error {
	if !w.queue.push(protocol.Encode(cmd)) {
		return ErrWriterStopped
	}
	return nil
}

// Pending returns the number of queued commands.
func (w *Writer) Pending() int { return w.queue.len() }

// Run drains the queue until ctx is cancelled. After every wait, with or
// without a command, it appends a poll once the poll interval has elapsed;
// the poll goes to the tail so earlier operator commands are written first.
//
// On shutdown the queue is closed before anything else, so later Sends fail
// with ErrWriterStopped, and every command accepted before that is still
// written to the attached port.
func (w *Writer) Run(ctx context.Context) {
	slog.Info("writer: started", "poll_interval", w.PollInterval())

	for {
		if cmd, ok := w.queue.pop(ctx, w.nextWait()); ok {
			w.write(cmd)
		}
		if ctx.Err() != nil {
			break
		}
		w.maybePoll()
	}

	pending := w.queue.close()
	if len(pending) > 0 {
		slog.Info("writer: flushing accepted commands", "count", len(pending))
	}
	for _, cmd := range pending {
		w.write(cmd)
	}
	slog.Info("writer: stopped")
}

// nextWait bounds the queue wait by queueTimeout and by the time left until
// the next poll is due.
func (w *Writer) nextWait() time.Duration {
	wait := w.queueTimeout
	if due := w.PollInterval() - w.now().Sub(w.lastPoll); due < wait {
		wait = due
	}
	return wait
}

func (w *Writer) maybePoll() {
	now := w.now()
	if now.Sub(w.lastPoll) < w.PollInterval() {
		return
	}
	if w.queue.push(protocol.Encode(protocol.PollCommand)) {
		w.polls.Add(1)
	}
	w.lastPoll = now
}

func (w *Writer) write(cmd []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	line := strings.TrimRight(string(cmd), "\r\n")
	if w.out == nil {
		w.dropped.Add(1)
		slog.Warn("writer: no port attached, command discarded", "command", line)
		return
	}
	if _, err := w.out.Write(cmd); err != nil {
		w.dropped.Add(1)
		slog.Error("writer: write failed", "command", line, "err", err)
		return
	}
	w.written.Add(1)
	slog.Debug("writer: command sent", "command", line)
}
