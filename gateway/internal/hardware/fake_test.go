package hardware

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hydrolab/stationlink/pkg/types"
)

// fakePort serves queued chunks to Read and records everything written.
type fakePort struct {
	reads chan []byte

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
	readErr error
}

func newFakePort() *fakePort {
	return &fakePort{reads: make(chan []byte, 16)}
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	closed, err := p.closed, p.readErr
	p.mu.Unlock()
	if closed {
		return 0, io.EOF
	}
	if err != nil {
		return 0, err
	}
	select {
	case chunk := <-p.reads:
		return copy(b, chunk), nil
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) failReads(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
}

// lines returns the CRLF-terminated commands written so far.
func (p *fakePort) lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := strings.TrimSuffix(p.written.String(), "\r\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\r\n")
}

// lineWriter is an io.Writer that records commands for writer-only tests.
type lineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(b)
}

func (w *lineWriter) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := strings.TrimSuffix(w.buf.String(), "\r\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\r\n")
}

type captureSink struct {
	mu      sync.Mutex
	batches []types.Batch
}

func (s *captureSink) Ship(b types.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
}

func (s *captureSink) all() []types.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Batch(nil), s.batches...)
}

func count(lines []string, want string) int {
	n := 0
	for _, l := range lines {
		if l == want {
			n++
		}
	}
	return n
}
