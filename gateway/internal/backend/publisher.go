package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hydrolab/stationlink/gateway/internal/config"
	"github.com/hydrolab/stationlink/pkg/types"
)

// ErrSessionExpired is returned by Push when the backend answers 401.
var ErrSessionExpired = errors.New("backend: session expired")

// Stats is a copy of the publisher counters.
type Stats struct {
	Pushed  uint64 `json:"pushed"`
	Failed  uint64 `json:"failed"`
	Evicted uint64 `json:"evicted"`
	Reauths uint64 `json:"reauths"`
}

// Publisher buffers batches and pushes them to the backend.
type Publisher struct {
	endpoint string
	client   *http.Client
	session  *Session
	buf      chan types.Batch
	newID    func() string // injectable for tests

	pushed  atomic.Uint64
	failed  atomic.Uint64
	evicted atomic.Uint64
}

// New creates a Publisher for cfg.
func New(cfg config.BackendConfig, workstation string) *Publisher {
	client := &http.Client{Timeout: cfg.Timeout}
	return &Publisher{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   client,
		session:  NewSession(cfg, workstation, client),
		buf:      make(chan types.Batch, cfg.BufferSize),
		newID:    func() string { return uuid.NewString() },
	}
}

// Session returns the publisher's session.
func (p *Publisher) Session() *Session { return p.session }

// Ship enqueues b without blocking. If the buffer is full the oldest batch
// is evicted to make room.
func (p *Publisher) Ship(b types.Batch) {
	for {
		select {
		case p.buf <- b:
			return
		default:
		}
		select {
		case <-p.buf:
			p.evicted.Add(1)
			slog.Warn("backend: buffer full, evicted oldest batch", "buffer_cap", cap(p.buf))
		default:
		}
	}
}

// Run logs in, then pushes buffered batches until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	if err := p.session.Login(ctx); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			p.session.Logout(context.WithoutCancel(ctx))
			return
		case b := <-p.buf:
			if err := p.Push(ctx, b); err != nil {
				slog.Error("backend: push failed, batch dropped",
					"workstation", b.WorkstationName, "metrics", len(b.Metrics), "err", err)
				continue
			}
			slog.Debug("backend: batch delivered", "metrics", len(b.Metrics))
		}
	}
}

type pushBody struct {
	WorkstationName string         `json:"workstation_name"`
	Metrics         []types.Metric `json:"metrics"`
}

// Push sends b once. A 401 returns ErrSessionExpired after one
// reauthentication; the batch is not resent.
func (p *Publisher) Push(ctx context.Context, b types.Batch) error {
	tok := p.session.Token()
	if tok == "" {
		p.failed.Add(1)
		return ErrNotAuthenticated
	}

	body, err := json.Marshal(pushBody{WorkstationName: b.WorkstationName, Metrics: b.Metrics})
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("backend: encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/metrics", bytes.NewReader(body))
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Request-ID", p.newID())

	resp, err := p.client.Do(req)
	if err != nil {
		p.failed.Add(1)
		return fmt.Errorf("backend: post metrics: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		p.pushed.Add(1)
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		p.failed.Add(1)
		if err := p.session.Reauthenticate(ctx); err != nil {
			return errors.Join(ErrSessionExpired, err)
		}
		return ErrSessionExpired
	default:
		p.failed.Add(1)
		return fmt.Errorf("backend: metrics rejected: %s", resp.Status)
	}
}

// Stats returns a copy of the counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Pushed:  p.pushed.Load(),
		Failed:  p.failed.Load(),
		Evicted: p.evicted.Load(),
		Reauths: p.session.Reauths(),
	}
}
