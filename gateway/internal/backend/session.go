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
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/hydrolab/stationlink/gateway/internal/config"
)

// ErrNotAuthenticated is returned when a push is attempted without a token.
var ErrNotAuthenticated = errors.New("backend: not authenticated")

// Session manages the bearer token used for backend requests.
type Session struct {
	endpoint    string
	workstation string
	username    string
	password    string
	retry       time.Duration
	client      *http.Client

	mu    sync.RWMutex
	token string

	group   singleflight.Group
	reauths atomic.Uint64
}

// NewSession returns a Session for cfg. No request is made until Login.
func NewSession(cfg config.BackendConfig, workstation string, client *http.Client) *Session {
	return &Session{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		workstation: workstation,
		username:    cfg.Username,
		password:    cfg.Password(),
		retry:       cfg.LoginRetry,
		client:      client,
	}
}

// Token returns the current bearer token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) setToken(tok string) {
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
}

// Login obtains a token, retrying every login_retry until it succeeds.
// Only ctx cancellation stops it.
func (s *Session) Login(ctx context.Context) error {
	bo := backoff.WithContext(backoff.NewConstantBackOff(s.retry), ctx)
	err := backoff.RetryNotify(func() error {
		return s.login(ctx)
	}, bo, func(err error, wait time.Duration) {
		slog.Warn("backend: login failed, will retry", "endpoint", s.endpoint, "err", err, "retry_in", wait)
	})
	if err != nil {
		return fmt.Errorf("backend: login: %w", err)
	}
	slog.Info("backend: logged in", "endpoint", s.endpoint, "workstation", s.workstation)
	return nil
}

type loginRequest struct {
	WorkstationName string `json:"workstation_name"`
	Username        string `json:"username"`
	Password        string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *Session) login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{
		WorkstationName: s.workstation,
		Username:        s.username,
		Password:        s.password,
	})
	if err != nil {
		return backoff.Permanent(fmt.Errorf("encode login: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/session", bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build login request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("login rejected: %s", resp.Status)
	}
	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if lr.Token == "" {
		return errors.New("login response has no token")
	}
	s.setToken(lr.Token)
	return nil
}

// Logout ends the session on the backend. Errors are logged; the local
// token is always cleared.
func (s *Session) Logout(ctx context.Context) {
	tok := s.Token()
	s.setToken("")
	if tok == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.endpoint+"/session", nil)
	if err != nil {
		slog.Warn("backend: logout request", "err", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Warn("backend: logout failed", "err", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("backend: logout rejected", "status", resp.Status)
	}
}

// Reauthenticate logs out and logs in again. Concurrent callers share a
// single attempt.
func (s *Session) Reauthenticate(ctx context.Context) error {
	_, err, shared := s.group.Do("reauth", func() (any, error) {
		s.reauths.Add(1)
		slog.Info("backend: reauthenticating")
		s.Logout(ctx)
		return nil, s.Login(ctx)
	})
	if shared {
		slog.Debug("backend: joined in-flight reauthentication")
	}
	return err
}

// Reauths returns how many reauthentications have run.
func (s *Session) Reauths() uint64 { return s.reauths.Load() }
